package services

import (
	"context"
	"errors"
	"log"
	"math"
	"sync"

	"github.com/go-creditgate/creditgate/internal/config"
	"github.com/go-creditgate/creditgate/internal/core"
	"github.com/go-creditgate/creditgate/internal/models"
	"github.com/go-creditgate/creditgate/internal/store"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// Settlement describes the outcome of a deduction. Warning is set when
// the ledger write failed after the upstream call already completed; the
// caller still reports the cost to the client, but the books are short
// one row until reconciliation.
type Settlement struct {
	Amount       int64
	BalanceAfter int64
	Warning      bool
}

// LedgerService owns all credit balance mutations. Transactions for the
// same user are serialized through a per-user mutex so the BalanceAfter
// chain stays contiguous even when settlements race.
type LedgerService struct {
	store   *store.Store
	config  *config.Config
	audit   *AuditService
	metrics core.Recorder

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewLedgerService(
	s *store.Store,
	cfg *config.Config,
	audit *AuditService,
	m core.Recorder,
) *LedgerService {
	return &LedgerService{
		store:   s,
		config:  cfg,
		audit:   audit,
		metrics: m,
		locks:   make(map[int64]*sync.Mutex),
	}
}

// userLock returns the mutex serializing ledger writes for one user.
func (s *LedgerService) userLock(userID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}

// CostForTokens converts a token count into credits. Every completed
// call costs at least one credit.
func (s *LedgerService) CostForTokens(totalTokens int) int64 {
	if totalTokens <= 0 {
		return 1
	}
	cost := int64(math.Ceil(float64(totalTokens) * float64(s.config.CreditPricePerK) / 1000.0))
	if cost < 1 {
		return 1
	}
	return cost
}

// EstimateCostForChunks reconstructs a cost from the number of stream
// chunks relayed when the upstream never reported usage. The estimate
// is never zero for a call that produced output.
func (s *LedgerService) EstimateCostForChunks(chunks int) int64 {
	if chunks <= 0 {
		return 1
	}
	return s.CostForTokens(chunks * s.config.StreamChunkEstimate)
}

// GetBalance returns the user's current credit balance.
func (s *LedgerService) GetBalance(userID int64) (int64, error) {
	return s.store.GetBalance(userID)
}

// HasSufficientBalance reports whether the user can afford at least
// the given minimum. Used as the pre-flight check before forwarding a
// metered call.
func (s *LedgerService) HasSufficientBalance(userID, minimum int64) (bool, error) {
	balance, err := s.store.GetBalance(userID)
	if err != nil {
		return false, err
	}
	return balance >= minimum, nil
}

// DeductOptions carries the usage context recorded with a deduction.
type DeductOptions struct {
	RequestID   string
	Model       string
	TotalTokens int
	Estimated   bool
	Description string
}

// Deduct settles a completed metered call. The deduction is applied even
// if it drives the balance negative, because the upstream work is
// already done. A failed ledger write is logged and reported through
// the Warning flag instead of failing the call.
func (s *LedgerService) Deduct(ctx context.Context, userID, amount int64, opts DeductOptions) Settlement {
	if amount < 1 {
		amount = 1
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	txn := &models.CreditTransaction{
		UserID:      userID,
		Kind:        models.TransactionUsage,
		Amount:      -amount,
		RequestID:   opts.RequestID,
		Model:       opts.Model,
		TotalTokens: opts.TotalTokens,
		Estimated:   opts.Estimated,
		Description: opts.Description,
	}

	balanceAfter, err := s.store.ApplyTransaction(txn)
	if err != nil {
		log.Printf("[Ledger] Failed to record deduction for user %d (amount=%d request=%s): %v",
			userID, amount, opts.RequestID, err)
		s.metrics.RecordLedgerWriteFailure()
		if s.audit != nil {
			s.audit.Log(ctx, AuditLogEntry{
				ActorUserID:  userID,
				EventType:    models.EventLedgerWriteFailed,
				ResourceType: models.ResourceLedger,
				ResourceID:   opts.RequestID,
				Success:      false,
				ErrorMessage: err.Error(),
				Details: map[string]any{
					"amount":       amount,
					"model":        opts.Model,
					"total_tokens": opts.TotalTokens,
					"estimated":    opts.Estimated,
				},
			})
		}

		// Best effort balance for the response headers
		balance, balErr := s.store.GetBalance(userID)
		if balErr != nil {
			balance = 0
		}
		return Settlement{Amount: amount, BalanceAfter: balance, Warning: true}
	}

	s.metrics.RecordCreditsDeducted(amount, opts.Estimated)
	if s.audit != nil {
		s.audit.Log(ctx, AuditLogEntry{
			ActorUserID:  userID,
			EventType:    models.EventCreditsDeducted,
			ResourceType: models.ResourceLedger,
			ResourceID:   txn.ID,
			Success:      true,
			Details: map[string]any{
				"amount":        amount,
				"balance_after": balanceAfter,
				"model":         opts.Model,
				"total_tokens":  opts.TotalTokens,
				"estimated":     opts.Estimated,
			},
		})
	}

	return Settlement{Amount: amount, BalanceAfter: balanceAfter}
}

// Credit grants credits to a user. Used for signup bonuses, purchases,
// refunds, and operator adjustments.
func (s *LedgerService) Credit(
	ctx context.Context,
	userID, amount int64,
	kind models.TransactionKind,
	description string,
) (int64, error) {
	if amount < 1 {
		return 0, ErrInvalidAmount
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	txn := &models.CreditTransaction{
		UserID:      userID,
		Kind:        kind,
		Amount:      amount,
		Description: description,
	}

	balanceAfter, err := s.store.ApplyTransaction(txn)
	if err != nil {
		return 0, err
	}

	s.metrics.RecordCreditsCredited(amount)
	if s.audit != nil {
		s.audit.Log(ctx, AuditLogEntry{
			ActorUserID:  userID,
			EventType:    models.EventCreditsGranted,
			ResourceType: models.ResourceLedger,
			ResourceID:   txn.ID,
			Success:      true,
			Details: map[string]any{
				"amount":        amount,
				"kind":          string(kind),
				"balance_after": balanceAfter,
			},
		})
	}

	return balanceAfter, nil
}

// GetHistory returns the most recent ledger entries for a user.
func (s *LedgerService) GetHistory(userID int64, limit int) ([]models.CreditTransaction, error) {
	return s.store.GetTransactionsByUserID(userID, limit)
}
