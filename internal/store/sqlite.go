package store

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-creditgate/creditgate/internal/models"
	"github.com/go-creditgate/creditgate/internal/util"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB
}

// NewOptions controls store initialization.
type NewOptions struct {
	SignupBonus int64 // initial credit grant for the seeded admin account
}

func New(driver, dsn string, opts NewOptions) (*Store, error) {
	dialector, err := GetDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// Auto migrate
	if err := db.AutoMigrate(
		&models.User{},
		&models.CreditTransaction{},
		&models.AuditLog{},
	); err != nil {
		return nil, err
	}

	store := &Store{db: db}

	// Seed default data
	if err := store.seedData(opts.SignupBonus); err != nil {
		log.Printf("Warning: failed to seed data: %v", err)
	}

	return store, nil
}

func (s *Store) seedData(signupBonus int64) error {
	// Create default admin if no users exist
	var userCount int64
	s.db.Model(&models.User{}).Count(&userCount)
	if userCount > 0 {
		return nil
	}

	password, err := util.CryptoRandomString(16)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user := &models.User{
		Username:     "admin",
		Email:        "admin@localhost", // Default email for admin
		PasswordHash: string(hash),
		Role:         "admin",
		Plan:         "operator",
	}
	if err := s.db.Create(user).Error; err != nil {
		return err
	}
	log.Printf("Created default user: admin / %s (role: admin)", password)

	if signupBonus > 0 {
		_, err := s.ApplyTransaction(&models.CreditTransaction{
			UserID:      user.ID,
			Kind:        models.TransactionBonus,
			Amount:      signupBonus,
			Description: "signup bonus",
		})
		if err != nil {
			return fmt.Errorf("failed to apply signup bonus: %w", err)
		}
	}

	return nil
}

// User operations

func (s *Store) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByID(id int64) (*models.User, error) {
	var user models.User
	if err := s.db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail finds a user by email address
func (s *Store) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser creates a new user, enforcing username and email uniqueness
// with distinct errors so handlers can report which field conflicted.
func (s *Store) CreateUser(user *models.User) error {
	var existing models.User
	err := s.db.Where("username = ?", user.Username).First(&existing).Error
	if err == nil {
		return ErrUsernameConflict
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check username: %w", err)
	}

	err = s.db.Where("email = ?", user.Email).First(&existing).Error
	if err == nil {
		return ErrEmailConflict
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check email: %w", err)
	}

	return s.db.Create(user).Error
}

// UpdateUser updates an existing user
func (s *Store) UpdateUser(user *models.User) error {
	return s.db.Save(user).Error
}

// Ledger operations

// GetBalance returns the current credit balance for a user.
func (s *Store) GetBalance(userID int64) (int64, error) {
	var user models.User
	if err := s.db.Select("credit_balance").Where("id = ?", userID).First(&user).Error; err != nil {
		return 0, err
	}
	return user.CreditBalance, nil
}

// ApplyTransaction appends a ledger row and moves the user balance in one
// database transaction. The caller fills UserID, Kind, Amount and context
// fields; ID, BalanceAfter and CreatedAt are assigned here. Callers must
// serialize transactions per user (the ledger service does) so the
// BalanceAfter chain stays contiguous; sqlite has no row-level locks to
// lean on.
func (s *Store) ApplyTransaction(txn *models.CreditTransaction) (int64, error) {
	var balanceAfter int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("id = ?", txn.UserID).First(&user).Error; err != nil {
			return err
		}

		balanceAfter = user.CreditBalance + txn.Amount
		if err := tx.Model(&models.User{}).
			Where("id = ?", user.ID).
			Update("credit_balance", balanceAfter).Error; err != nil {
			return err
		}

		if txn.ID == "" {
			txn.ID = uuid.New().String()
		}
		txn.BalanceAfter = balanceAfter
		txn.CreatedAt = time.Now()
		return tx.Create(txn).Error
	})
	if err != nil {
		return 0, err
	}
	return balanceAfter, nil
}

// GetTransactionsByUserID returns the most recent ledger rows for a user,
// newest first.
func (s *Store) GetTransactionsByUserID(userID int64, limit int) ([]models.CreditTransaction, error) {
	var txns []models.CreditTransaction
	q := s.db.Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// Metrics counts

// CountUsers returns the total number of registered users.
func (s *Store) CountUsers() (int64, error) {
	var count int64
	err := s.db.Model(&models.User{}).Count(&count).Error
	return count, err
}

// CountTransactions returns the total number of ledger rows.
func (s *Store) CountTransactions() (int64, error) {
	var count int64
	err := s.db.Model(&models.CreditTransaction{}).Count(&count).Error
	return count, err
}

// SumOutstandingCredits returns the sum of all user balances.
func (s *Store) SumOutstandingCredits() (int64, error) {
	var total *int64
	err := s.db.Model(&models.User{}).Select("SUM(credit_balance)").Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// Audit log operations

// CreateAuditLog inserts a single audit log entry
func (s *Store) CreateAuditLog(entry *models.AuditLog) error {
	return s.db.Create(entry).Error
}

// CreateAuditLogBatch inserts audit log entries in a single batch
func (s *Store) CreateAuditLogBatch(entries []*models.AuditLog) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.Create(entries).Error
}

// DeleteOldAuditLogs removes audit entries created before cutoff
func (s *Store) DeleteOldAuditLogs(cutoff time.Time) error {
	return s.db.Where("created_at < ?", cutoff).Delete(&models.AuditLog{}).Error
}

// Health checks the database connection
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// DB returns the underlying GORM database connection (for transactions)
func (s *Store) DB() *gorm.DB {
	return s.db
}
