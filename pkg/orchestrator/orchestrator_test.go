package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/AkaakuHub/twix-saver/pkg/accounts"
	"github.com/AkaakuHub/twix-saver/pkg/articles"
	"github.com/AkaakuHub/twix-saver/pkg/blob"
	"github.com/AkaakuHub/twix-saver/pkg/browser"
	"github.com/AkaakuHub/twix-saver/pkg/config"
	"github.com/AkaakuHub/twix-saver/pkg/models"
	"github.com/AkaakuHub/twix-saver/pkg/pipeline"
	"github.com/AkaakuHub/twix-saver/pkg/store"
)

// stubDriver satisfies browser.Driver without a real browser. Navigation can
// be failed per URL substring and selector visibility is scripted.
type stubDriver struct {
	failNavigate []string
	loginWorks   bool
}

func (d *stubDriver) Start(context.Context) error            { return nil }
func (d *stubDriver) OnResponse(func(browser.NetworkResponse)) {}
func (d *stubDriver) Close() error                           { return nil }

func (d *stubDriver) Navigate(_ context.Context, url string) error {
	for _, frag := range d.failNavigate {
		if strings.Contains(url, frag) {
			return errors.New("navigation failed: " + url)
		}
	}
	return nil
}

func (d *stubDriver) CurrentURL(context.Context) (string, error) { return "https://x.com/home", nil }
func (d *stubDriver) Click(context.Context, string) error        { return nil }
func (d *stubDriver) Fill(context.Context, string, string) error { return nil }
func (d *stubDriver) PressEnter(context.Context, string) error   { return nil }

func (d *stubDriver) WaitVisible(context.Context, string, time.Duration) error { return nil }

func (d *stubDriver) IsVisible(_ context.Context, selector string, _ time.Duration) (bool, error) {
	if strings.Contains(selector, "SideNav_NewTweet_Button") {
		return d.loginWorks, nil
	}
	return false, nil
}

// Evaluate fails so harvest loops terminate immediately in tests
func (d *stubDriver) Evaluate(context.Context, string) error {
	return errors.New("scroll unavailable")
}

func (d *stubDriver) Cookies(context.Context) ([]browser.SessionCookie, error) { return nil, nil }
func (d *stubDriver) SetCookies(context.Context, []browser.SessionCookie) error { return nil }

type fixture struct {
	cfg   *config.Config
	db    *gorm.DB
	orch  *Orchestrator
	pool  *accounts.Pool
	jobs  *store.JobRepository
	accts *store.AccountRepository
}

func newFixture(t *testing.T, driver browser.Driver) *fixture {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.Scraper.ChunkDir = t.TempDir()
	cfg.Browser.SessionsDir = t.TempDir()
	cfg.Blob.Dir = t.TempDir()
	cfg.Articles.Enabled = false
	cfg.Scraper.LoginMaxAttempts = 1 // keep failed-login tests quick

	db, err := store.Open(&cfg.Database)
	require.NoError(t, err)

	cipher, err := accounts.NewCipher("test-secret")
	require.NoError(t, err)

	acctRepo := store.NewAccountRepository(db)
	pool := accounts.NewPool(acctRepo, cipher)

	blobs, err := blob.NewFSStore(cfg.Blob.Dir)
	require.NoError(t, err)
	media := pipeline.NewMediaProcessor(&cfg.Ingest, blobs, store.NewMediaRepository(db))
	pipe := pipeline.New(&cfg.Ingest, cfg.Scraper.ChunkDir,
		store.NewPostRepository(db), store.NewArticleRepository(db), media)

	jobs := store.NewJobRepository(db)
	orch := New(cfg, jobs, store.NewPostRepository(db), store.NewArticleRepository(db),
		pool, pipe, articles.NewHTTPExtractor(&cfg.Articles),
		func() browser.Driver { return driver })

	return &fixture{cfg: cfg, db: db, orch: orch, pool: pool, jobs: jobs, accts: acctRepo}
}

func TestRunFailsFastWithoutAccounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubDriver{loginWorks: true})

	job, err := f.orch.CreateJob(ctx, []string{"alice"}, nil, false, nil)
	require.NoError(t, err)

	err = f.orch.Run(ctx, job.JobID)
	assert.ErrorIs(t, err, accounts.ErrNoAvailableAccounts)

	got, err := f.jobs.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
}

func TestRunIsolatesTargetFailures(t *testing.T) {
	ctx := context.Background()
	driver := &stubDriver{loginWorks: true, failNavigate: []string{"/alice"}}
	f := newFixture(t, driver)

	account, err := f.pool.AddAccount(ctx, "scraper1", "s@example.com", "pw")
	require.NoError(t, err)

	job, err := f.orch.CreateJob(ctx, []string{"alice", "bob"}, nil, false, nil)
	require.NoError(t, err)

	require.NoError(t, f.orch.Run(ctx, job.JobID))

	got, err := f.jobs.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status, "one bad target must not fail the job")
	require.NotEmpty(t, got.Errors)
	assert.Contains(t, got.Errors[0], "alice")

	// the surviving account records a success
	refreshed, err := f.accts.Get(ctx, account.AccountID)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed.SuccessfulJobs)
	assert.Equal(t, 1, refreshed.TotalJobsRun)
}

func TestRunRecordsLoginFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubDriver{loginWorks: false})

	account, err := f.pool.AddAccount(ctx, "scraper1", "s@example.com", "pw")
	require.NoError(t, err)

	job, err := f.orch.CreateJob(ctx, []string{"alice"}, nil, false, nil)
	require.NoError(t, err)

	err = f.orch.Run(ctx, job.JobID)
	require.Error(t, err)

	got, err := f.jobs.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)

	refreshed, err := f.accts.Get(ctx, account.AccountID)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed.LoginAttempts, "a login failure counts toward lockout")
	assert.Equal(t, 1, refreshed.FailedJobs)
}

func TestCreateJobNormalizesTargets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubDriver{loginWorks: true})

	job, err := f.orch.CreateJob(ctx, []string{"@alice", " bob "}, nil, true, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, job.TargetUsernames)
	assert.True(t, job.ProcessArticles)

	_, err = f.orch.CreateJob(ctx, nil, nil, false, nil)
	assert.Error(t, err)
}

func TestCreateJobAcceptsRefetchOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubDriver{loginWorks: true})

	job, err := f.orch.CreateJob(ctx, nil, []string{"1234567890"}, false, nil)
	require.NoError(t, err)
	assert.Empty(t, job.TargetUsernames)
	assert.Equal(t, []string{"1234567890"}, job.SpecificPostIDs)
}
