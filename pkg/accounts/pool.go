package accounts

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"gorm.io/gorm"

	xerrors "github.com/AkaakuHub/twix-saver/pkg/errors"
	"github.com/AkaakuHub/twix-saver/pkg/logger"
	"github.com/AkaakuHub/twix-saver/pkg/models"
	"github.com/AkaakuHub/twix-saver/pkg/store"
)

// ErrNoAvailableAccounts is returned when the pool has no usable account
var ErrNoAvailableAccounts = errors.New("no available accounts in pool")

// Pool rotates scraping accounts. Every mutation is a fresh read-modify-write
// against the store keyed by account id; the pool never caches account state
// in memory, so concurrent workers always see the latest lockout and
// rate-limit flags.
type Pool struct {
	repo   *store.AccountRepository
	cipher *Cipher
	log    logger.Logger
}

// NewPool creates an account pool over the repository
func NewPool(repo *store.AccountRepository, cipher *Cipher) *Pool {
	return &Pool{
		repo:   repo,
		cipher: cipher,
		log:    logger.GetLogger().WithField("component", "account_pool"),
	}
}

// AddAccount encrypts the password and persists a new pool account. The
// plaintext never leaves this call.
func (p *Pool) AddAccount(ctx context.Context, username, email, password string) (*models.Account, error) {
	encrypted, err := p.cipher.Encrypt(password)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrorTypeSetup, "failed to encrypt credential", err)
	}

	account := models.NewAccount(username, email, encrypted)
	if err := p.repo.Create(ctx, account); err != nil {
		return nil, err
	}

	p.log.InfoWithFields("account added to pool", map[string]interface{}{
		"username":   account.Username,
		"account_id": account.AccountID,
	})
	return account, nil
}

// Available returns the accounts currently usable for a job. The predicate is
// evaluated against freshly read rows on every call.
func (p *Pool) Available(ctx context.Context) ([]*models.Account, error) {
	all, err := p.repo.List(ctx, true)
	if err != nil {
		return nil, err
	}

	available := make([]*models.Account, 0, len(all))
	for _, account := range all {
		if account.IsAvailable() {
			available = append(available, account)
		}
	}
	return available, nil
}

// Select picks one available account uniformly at random. Selection does not
// reserve the account; two concurrent jobs may pick the same one.
func (p *Pool) Select(ctx context.Context) (*models.Account, error) {
	available, err := p.Available(ctx)
	if err != nil {
		return nil, err
	}
	if len(available) == 0 {
		return nil, ErrNoAvailableAccounts
	}

	account := available[rand.Intn(len(available))]
	p.log.DebugWithFields("account selected", map[string]interface{}{
		"username":  account.Username,
		"pool_size": len(available),
	})
	return account, nil
}

// DecryptPassword returns the plaintext credential for a login attempt.
// Callers must use it immediately and never persist or log it.
func (p *Pool) DecryptPassword(account *models.Account) (string, error) {
	plaintext, err := p.cipher.Decrypt(account.PasswordEncrypted)
	if err != nil {
		return "", xerrors.Wrap(xerrors.ErrorTypeAuth, "failed to decrypt credential", err)
	}
	return plaintext, nil
}

// MarkUsed records that the account picked up a job
func (p *Pool) MarkUsed(ctx context.Context, accountID string) error {
	return p.mutate(ctx, accountID, func(a *models.Account) {
		a.MarkUsed()
	})
}

// MarkJobSuccess records a successful run and clears any login lockout
func (p *Pool) MarkJobSuccess(ctx context.Context, accountID string) error {
	return p.mutate(ctx, accountID, func(a *models.Account) {
		a.MarkJobSuccess()
	})
}

// MarkJobFailure records a failed run. kind "login_failed" counts toward the
// lockout threshold.
func (p *Pool) MarkJobFailure(ctx context.Context, accountID, kind string) error {
	return p.mutate(ctx, accountID, func(a *models.Account) {
		a.MarkJobFailure(kind)
		if a.Status == models.AccountStatusLoginFailed {
			p.log.WarnWithFields("account locked out after repeated login failures", map[string]interface{}{
				"username": a.Username,
				"attempts": a.LoginAttempts,
			})
		}
	})
}

// SetRateLimited throttles the account until the given time, defaulting to
// now when unspecified
func (p *Pool) SetRateLimited(ctx context.Context, accountID string, until *time.Time) error {
	return p.mutate(ctx, accountID, func(a *models.Account) {
		a.SetRateLimited(until)
		p.log.WarnWithFields("account rate limited", map[string]interface{}{
			"username": a.Username,
			"until":    a.RateLimitUntil,
		})
	})
}

// Deactivate flips the administrative master switch off
func (p *Pool) Deactivate(ctx context.Context, accountID string) error {
	return p.mutate(ctx, accountID, func(a *models.Account) {
		a.Active = false
		a.Status = models.AccountStatusInactive
	})
}

// Reactivate turns an account back on and clears its lockout state
func (p *Pool) Reactivate(ctx context.Context, accountID string) error {
	return p.mutate(ctx, accountID, func(a *models.Account) {
		a.Active = true
		a.Status = models.AccountStatusActive
		a.LoginAttempts = 0
		a.RateLimitUntil = nil
	})
}

func (p *Pool) mutate(ctx context.Context, accountID string, apply func(*models.Account)) error {
	account, err := p.repo.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("account not found: " + accountID)
		}
		return err
	}
	apply(account)
	return p.repo.Update(ctx, account)
}
