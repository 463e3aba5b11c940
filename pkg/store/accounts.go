package store

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/AkaakuHub/twix-saver/pkg/models"
)

// AccountRepository persists pool accounts. Mutations are whole-row saves;
// the pool manager re-reads before every mutation so no state is cached
// across calls.
type AccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates an account repository bound to db
func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create persists a new account
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Create(accountToRecord(account)).Error
}

// Get looks an account up by id
func (r *AccountRepository) Get(ctx context.Context, accountID string) (*models.Account, error) {
	var rec AccountRecord
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&rec).Error; err != nil {
		return nil, err
	}
	return recordToAccount(&rec), nil
}

// GetByUsername looks an account up by its handle
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	var rec AccountRecord
	username = strings.TrimPrefix(username, "@")
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&rec).Error; err != nil {
		return nil, err
	}
	return recordToAccount(&rec), nil
}

// List returns accounts, newest first; inactive ones only when requested
func (r *AccountRepository) List(ctx context.Context, includeInactive bool) ([]*models.Account, error) {
	q := r.db.WithContext(ctx).Model(&AccountRecord{}).Order("created_at DESC")
	if !includeInactive {
		q = q.Where("active = ?", true)
	}

	var recs []AccountRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}

	accounts := make([]*models.Account, 0, len(recs))
	for i := range recs {
		accounts = append(accounts, recordToAccount(&recs[i]))
	}
	return accounts, nil
}

// Update writes the full account row back
func (r *AccountRepository) Update(ctx context.Context, account *models.Account) error {
	account.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(accountToRecord(account)).Error
}

// Delete removes an account
func (r *AccountRepository) Delete(ctx context.Context, accountID string) error {
	return r.db.WithContext(ctx).Where("account_id = ?", accountID).Delete(&AccountRecord{}).Error
}

func accountToRecord(a *models.Account) *AccountRecord {
	return &AccountRecord{
		AccountID:         a.AccountID,
		Username:          a.Username,
		Email:             a.Email,
		PasswordEncrypted: a.PasswordEncrypted,
		DisplayName:       a.DisplayName,
		Status:            string(a.Status),
		Active:            a.Active,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
		LastUsedAt:        a.LastUsedAt,
		TotalJobsRun:      a.TotalJobsRun,
		SuccessfulJobs:    a.SuccessfulJobs,
		FailedJobs:        a.FailedJobs,
		LoginAttempts:     a.LoginAttempts,
		RateLimitedCount:  a.RateLimitedCount,
		RateLimitUntil:    a.RateLimitUntil,
		Priority:          a.Priority,
		Notes:             a.Notes,
	}
}

func recordToAccount(rec *AccountRecord) *models.Account {
	return &models.Account{
		AccountID:         rec.AccountID,
		Username:          rec.Username,
		Email:             rec.Email,
		PasswordEncrypted: rec.PasswordEncrypted,
		DisplayName:       rec.DisplayName,
		Status:            models.AccountStatus(rec.Status),
		Active:            rec.Active,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
		LastUsedAt:        rec.LastUsedAt,
		TotalJobsRun:      rec.TotalJobsRun,
		SuccessfulJobs:    rec.SuccessfulJobs,
		FailedJobs:        rec.FailedJobs,
		LoginAttempts:     rec.LoginAttempts,
		RateLimitedCount:  rec.RateLimitedCount,
		RateLimitUntil:    rec.RateLimitUntil,
		Priority:          rec.Priority,
		Notes:             rec.Notes,
	}
}
