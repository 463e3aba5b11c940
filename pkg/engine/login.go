package engine

import (
	"context"
	"time"

	"github.com/AkaakuHub/twix-saver/pkg/browser"
	xerrors "github.com/AkaakuHub/twix-saver/pkg/errors"
	"github.com/AkaakuHub/twix-saver/pkg/models"
)

const (
	loginURL = baseURL + "/i/flow/login"

	usernameSelector  = `input[autocomplete="username"]`
	passwordSelector  = `input[name="password"]`
	challengeSelector = `input[data-testid="ocfEnterTextTextInput"]`
	loggedInSelector  = `[data-testid="SideNav_NewTweet_Button"]`
)

// Login authenticates the browser session as the given pool account. A saved
// session is tried first; only when that fails does the form flow run, with a
// bounded number of attempts. The password arrives decrypted from the pool
// and exists only for the duration of this call; it is never persisted or
// logged.
func (e *Engine) Login(ctx context.Context, sessionsDir string, account *models.Account, password string) error {
	restored, err := e.restoreSession(ctx, sessionsDir, account.Username)
	if err != nil {
		e.log.WithError(err).Warn("session restore failed, falling back to fresh login")
	}
	if restored {
		e.log.WithField("username", account.Username).Info("session restored")
		return nil
	}

	maxAttempts := e.cfg.LoginMaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var loginErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		loginErr = e.formLogin(ctx, account, password)
		if loginErr == nil {
			break
		}
		e.log.WithError(loginErr).WarnWithFields("login attempt failed", map[string]interface{}{
			"username": account.Username,
			"attempt":  attempt,
		})
	}
	if loginErr != nil {
		return loginErr
	}

	cookies, err := e.driver.Cookies(ctx)
	if err != nil {
		e.log.WithError(err).Warn("could not read cookies, session will not be saved")
		return nil
	}
	if err := browser.SaveSession(sessionsDir, account.Username, cookies); err != nil {
		e.log.WithError(err).Warn("could not save session")
	}
	return nil
}

// restoreSession loads saved cookies and verifies they still authenticate
func (e *Engine) restoreSession(ctx context.Context, sessionsDir, username string) (bool, error) {
	state, err := browser.LoadSession(sessionsDir, username)
	if err != nil || state == nil {
		return false, err
	}

	if err := e.driver.SetCookies(ctx, state.Cookies); err != nil {
		return false, err
	}
	if err := e.driver.Navigate(ctx, baseURL+"/home"); err != nil {
		return false, err
	}

	authed, err := e.driver.IsVisible(ctx, primaryColumnSelector, 8*time.Second)
	if err != nil {
		return false, err
	}
	if !authed {
		// Cookies expired; drop the stale file so the next run goes
		// straight to the form
		_ = browser.DeleteSession(sessionsDir, username)
	}
	return authed, nil
}

func (e *Engine) formLogin(ctx context.Context, account *models.Account, password string) error {
	e.log.WithField("username", account.Username).Info("logging in")

	if err := e.driver.Navigate(ctx, loginURL); err != nil {
		return xerrors.Wrap(xerrors.ErrorTypeAuth, "could not open login page", err)
	}

	if err := e.driver.Fill(ctx, usernameSelector, account.Username); err != nil {
		return xerrors.Wrap(xerrors.ErrorTypeAuth, "could not fill username", err)
	}
	sleepHuman(ctx, 500*time.Millisecond, 1500*time.Millisecond)
	if err := e.driver.PressEnter(ctx, usernameSelector); err != nil {
		return xerrors.Wrap(xerrors.ErrorTypeAuth, "could not advance past username", err)
	}

	// An unusual-activity challenge asks for the account email before the
	// password prompt appears
	challenged, err := e.driver.IsVisible(ctx, challengeSelector, 4*time.Second)
	if err != nil {
		return xerrors.Wrap(xerrors.ErrorTypeAuth, "challenge detection failed", err)
	}
	if challenged {
		e.log.WithField("username", account.Username).Info("identity challenge, answering with email")
		if err := e.driver.Fill(ctx, challengeSelector, account.Email); err != nil {
			return xerrors.Wrap(xerrors.ErrorTypeAuth, "could not answer challenge", err)
		}
		sleepHuman(ctx, 500*time.Millisecond, 1500*time.Millisecond)
		if err := e.driver.PressEnter(ctx, challengeSelector); err != nil {
			return xerrors.Wrap(xerrors.ErrorTypeAuth, "could not submit challenge", err)
		}
	}

	if err := e.driver.Fill(ctx, passwordSelector, password); err != nil {
		return xerrors.Wrap(xerrors.ErrorTypeAuth, "could not fill password", err)
	}
	sleepHuman(ctx, 500*time.Millisecond, 1500*time.Millisecond)
	if err := e.driver.PressEnter(ctx, passwordSelector); err != nil {
		return xerrors.Wrap(xerrors.ErrorTypeAuth, "could not submit password", err)
	}

	loggedIn, err := e.driver.IsVisible(ctx, loggedInSelector, 20*time.Second)
	if err != nil {
		return xerrors.Wrap(xerrors.ErrorTypeAuth, "login verification failed", err)
	}
	if !loggedIn {
		return xerrors.New(xerrors.ErrorTypeAuth, "login rejected for "+account.Username)
	}

	e.log.WithField("username", account.Username).Info("login successful")
	return nil
}
