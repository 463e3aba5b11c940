package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AccountStatus is the health state of a pool account
type AccountStatus string

const (
	AccountStatusActive      AccountStatus = "active"
	AccountStatusInactive    AccountStatus = "inactive"
	AccountStatusSuspended   AccountStatus = "suspended"
	AccountStatusRateLimited AccountStatus = "rate_limited"
	AccountStatusLoginFailed AccountStatus = "login_failed"
)

// MaxLoginAttempts is the lockout threshold for consecutive login failures
const MaxLoginAttempts = 3

// Account is one rotating credential of the scraping pool.
//
// Active is the administrative master switch and is independent of Status.
// PasswordEncrypted is only ever decrypted transiently at the point of use.
type Account struct {
	AccountID         string        `json:"account_id"`
	Username          string        `json:"username"`
	Email             string        `json:"email"`
	PasswordEncrypted string        `json:"-"`
	DisplayName       string        `json:"display_name,omitempty"`
	Status            AccountStatus `json:"status"`
	Active            bool          `json:"active"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	LastUsedAt        *time.Time    `json:"last_used_at,omitempty"`

	TotalJobsRun     int `json:"total_jobs_run"`
	SuccessfulJobs   int `json:"successful_jobs"`
	FailedJobs       int `json:"failed_jobs"`
	LoginAttempts    int `json:"login_attempts"`
	RateLimitedCount int `json:"rate_limited_count"`

	RateLimitUntil *time.Time `json:"rate_limit_until,omitempty"`
	Priority       int        `json:"priority"`
	Notes          string     `json:"notes,omitempty"`
}

// NewAccount creates an active account with the given encrypted credential
func NewAccount(username, email, passwordEncrypted string) *Account {
	now := time.Now().UTC()
	return &Account{
		AccountID:         uuid.NewString(),
		Username:          strings.TrimPrefix(username, "@"),
		Email:             email,
		PasswordEncrypted: passwordEncrypted,
		Status:            AccountStatusActive,
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
		Priority:          1,
	}
}

// IsAvailable combines the administrative switch, lockout status and
// rate-limit expiry into the availability predicate. Recomputed on every
// call, never cached.
func (a *Account) IsAvailable() bool {
	if !a.Active {
		return false
	}
	if a.Status == AccountStatusSuspended || a.Status == AccountStatusLoginFailed {
		return false
	}
	if a.RateLimitUntil != nil && a.RateLimitUntil.After(time.Now().UTC()) {
		return false
	}
	return true
}

// MarkUsed records one more job pickup
func (a *Account) MarkUsed() {
	now := time.Now().UTC()
	a.LastUsedAt = &now
	a.TotalJobsRun++
}

// MarkJobSuccess records a successful run. It also resets the login failure
// counter and, when login failures were the sole reason for unavailability,
// restores the account to active.
func (a *Account) MarkJobSuccess() {
	a.SuccessfulJobs++
	a.LoginAttempts = 0
	if a.Status == AccountStatusLoginFailed {
		a.Status = AccountStatusActive
	}
}

// MarkJobFailure records a failed run. A login failure counts toward the
// lockout threshold; reaching it flips the account to login_failed and
// deactivates it.
func (a *Account) MarkJobFailure(kind string) {
	a.FailedJobs++
	if kind == "login_failed" {
		a.LoginAttempts++
		if a.LoginAttempts >= MaxLoginAttempts {
			a.Status = AccountStatusLoginFailed
			a.Active = false
		}
	}
}

// SetRateLimited marks the account as throttled until the given time,
// defaulting to now when unspecified
func (a *Account) SetRateLimited(until *time.Time) {
	a.Status = AccountStatusRateLimited
	if until == nil {
		now := time.Now().UTC()
		until = &now
	}
	a.RateLimitUntil = until
	a.RateLimitedCount++
}
