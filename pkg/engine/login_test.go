package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AkaakuHub/twix-saver/pkg/browser"
	"github.com/AkaakuHub/twix-saver/pkg/config"
	"github.com/AkaakuHub/twix-saver/pkg/models"
)

// loginDriver scripts just enough of browser.Driver to exercise the login
// flow without a real browser
type loginDriver struct {
	failFill    bool
	authedHome  bool
	navigations int
	fillCalls   int
}

func (d *loginDriver) Start(context.Context) error              { return nil }
func (d *loginDriver) OnResponse(func(browser.NetworkResponse)) {}
func (d *loginDriver) Close() error                             { return nil }

func (d *loginDriver) Navigate(_ context.Context, url string) error {
	if strings.Contains(url, "/i/flow/login") {
		d.navigations++
	}
	return nil
}

func (d *loginDriver) CurrentURL(context.Context) (string, error) { return "", nil }
func (d *loginDriver) Click(context.Context, string) error        { return nil }

func (d *loginDriver) Fill(context.Context, string, string) error {
	d.fillCalls++
	if d.failFill {
		return errors.New("element not found")
	}
	return nil
}

func (d *loginDriver) PressEnter(context.Context, string) error { return nil }

func (d *loginDriver) WaitVisible(context.Context, string, time.Duration) error { return nil }

func (d *loginDriver) IsVisible(_ context.Context, selector string, _ time.Duration) (bool, error) {
	if strings.Contains(selector, "primaryColumn") {
		return d.authedHome, nil
	}
	return false, nil
}

func (d *loginDriver) Evaluate(context.Context, string) error { return nil }

func (d *loginDriver) Cookies(context.Context) ([]browser.SessionCookie, error) { return nil, nil }
func (d *loginDriver) SetCookies(context.Context, []browser.SessionCookie) error {
	return nil
}

func newLoginEngine(driver browser.Driver, maxAttempts int) *Engine {
	cfg := &config.ScraperConfig{LoginMaxAttempts: maxAttempts}
	return NewEngine(cfg, driver)
}

func TestLoginRetriesUpToConfiguredBudget(t *testing.T) {
	driver := &loginDriver{failFill: true}
	eng := newLoginEngine(driver, 3)

	account := &models.Account{Username: "alice", Email: "alice@example.com"}
	err := eng.Login(context.Background(), t.TempDir(), account, "pw")

	require.Error(t, err)
	assert.Equal(t, 3, driver.navigations, "each attempt opens the login page once")
}

func TestLoginBudgetFloorsAtOneAttempt(t *testing.T) {
	driver := &loginDriver{failFill: true}
	eng := newLoginEngine(driver, 0)

	account := &models.Account{Username: "alice", Email: "alice@example.com"}
	err := eng.Login(context.Background(), t.TempDir(), account, "pw")

	require.Error(t, err)
	assert.Equal(t, 1, driver.navigations)
}

func TestLoginRestoredSessionSkipsForm(t *testing.T) {
	dir := t.TempDir()
	cookies := []browser.SessionCookie{{Name: "auth_token", Value: "tok", Domain: ".x.com"}}
	require.NoError(t, browser.SaveSession(dir, "alice", cookies))

	driver := &loginDriver{authedHome: true}
	eng := newLoginEngine(driver, 3)

	account := &models.Account{Username: "alice", Email: "alice@example.com"}
	require.NoError(t, eng.Login(context.Background(), dir, account, "pw"))
	assert.Equal(t, 0, driver.fillCalls, "a live session never touches the form")
}
