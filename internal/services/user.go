package services

import (
	"context"
	"errors"

	"github.com/go-creditgate/creditgate/internal/config"
	"github.com/go-creditgate/creditgate/internal/core"
	"github.com/go-creditgate/creditgate/internal/models"
	"github.com/go-creditgate/creditgate/internal/store"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// UserService handles account authentication and registration.
type UserService struct {
	store   *store.Store
	config  *config.Config
	ledger  *LedgerService
	audit   *AuditService
	metrics core.Recorder
}

func NewUserService(
	s *store.Store,
	cfg *config.Config,
	ledger *LedgerService,
	audit *AuditService,
	m core.Recorder,
) *UserService {
	return &UserService{
		store:   s,
		config:  cfg,
		ledger:  ledger,
		audit:   audit,
		metrics: m,
	}
}

// Authenticate verifies a username/password pair. A missing user and a
// wrong password produce the same error.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.store.GetUserByUsername(username)
	if err != nil {
		s.metrics.RecordLogin(false)
		s.logAuthFailure(ctx, username, "unknown user")
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.metrics.RecordLogin(false)
		s.logAuthFailure(ctx, username, "wrong password")
		return nil, ErrInvalidCredentials
	}

	s.metrics.RecordLogin(true)
	if s.audit != nil {
		s.audit.Log(ctx, AuditLogEntry{
			ActorUserID:   user.ID,
			ActorUsername: user.Username,
			EventType:     models.EventAuthenticationSuccess,
			ResourceType:  models.ResourceUser,
			Success:       true,
		})
	}
	return user, nil
}

func (s *UserService) logAuthFailure(ctx context.Context, username, reason string) {
	if s.audit == nil {
		return
	}
	s.audit.Log(ctx, AuditLogEntry{
		ActorUsername: username,
		EventType:     models.EventAuthenticationFailure,
		ResourceType:  models.ResourceUser,
		Success:       false,
		ErrorMessage:  reason,
	})
}

// Register creates a new account and grants the signup bonus.
func (s *UserService) Register(ctx context.Context, username, email, password, fullName string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		FullName:     fullName,
		Role:         "user",
		Plan:         "free",
	}
	if err := s.store.CreateUser(user); err != nil {
		return nil, err
	}

	if s.config.SignupBonusCredits > 0 {
		if _, err := s.ledger.Credit(
			ctx,
			user.ID,
			s.config.SignupBonusCredits,
			models.TransactionBonus,
			"signup bonus",
		); err != nil {
			return nil, err
		}
	}

	return s.store.GetUserByID(user.ID)
}

// GetByID returns a user by primary key.
func (s *UserService) GetByID(id int64) (*models.User, error) {
	user, err := s.store.GetUserByID(id)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// GetByUsername returns a user by username.
func (s *UserService) GetByUsername(username string) (*models.User, error) {
	user, err := s.store.GetUserByUsername(username)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}
