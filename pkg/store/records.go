package store

import "time"

// PostRecord is the stored form of one harvested post. The raw nested payload
// lives in Payload as JSON; the columns beside it are the indexed projections
// the engine and pipeline query on.
type PostRecord struct {
	IDStr          string     `gorm:"column:id_str;primaryKey"`
	RestID         string     `gorm:"column:rest_id;uniqueIndex"`
	ScreenName     string     `gorm:"index"`
	ScrapedAt      *time.Time `gorm:"index"`
	ScraperAccount string     `gorm:"index"`
	Payload        []byte

	ImageStatus       string `gorm:"index;default:pending"`
	ImageAttemptedAt  *time.Time
	ImageCompletedAt  *time.Time
	ImageRetryCount   int
	ImageLastError    string
	ImageMediaCount   int
	ImageSuccessCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (PostRecord) TableName() string { return "posts" }

// ArticleRecord is one extracted linked article, unique by URL
type ArticleRecord struct {
	URL         string `gorm:"primaryKey"`
	Title       string
	Payload     []byte
	RetrievedAt time.Time `gorm:"index"`
	UpdatedAt   time.Time
}

func (ArticleRecord) TableName() string { return "linked_articles" }

// MediaRecord is the metadata of one stored media binary
type MediaRecord struct {
	MediaID     string `gorm:"primaryKey"`
	FilePath    string
	ContentType string
	Size        int
	CreatedAt   time.Time `gorm:"index"`
}

func (MediaRecord) TableName() string { return "media_files" }

// JobRecord is the stored form of a scraping job. Targets, logs and errors
// are JSON arrays; stats are flat columns so increments stay single updates.
type JobRecord struct {
	JobID           string `gorm:"primaryKey"`
	TargetUsernames []byte
	SpecificPostIDs []byte
	Status          string    `gorm:"index"`
	CreatedAt       time.Time `gorm:"index"`
	StartedAt       *time.Time
	CompletedAt     *time.Time
	ScraperAccount  string

	PostsCollected        int
	ArticlesExtracted     int
	MediaDownloaded       int
	ErrorsCount           int
	ProcessingTimeSeconds float64
	PagesScrolled         int
	APIRequestsMade       int

	Logs   []byte
	Errors []byte

	ProcessArticles bool
	MaxPosts        *int

	UpdatedAt time.Time
}

func (JobRecord) TableName() string { return "scraping_jobs" }

// AccountRecord is the stored form of one pool account
type AccountRecord struct {
	AccountID         string `gorm:"primaryKey"`
	Username          string `gorm:"uniqueIndex"`
	Email             string
	PasswordEncrypted string
	DisplayName       string
	Status            string `gorm:"index"`
	Active            bool   `gorm:"index"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastUsedAt        *time.Time

	TotalJobsRun     int
	SuccessfulJobs   int
	FailedJobs       int
	LoginAttempts    int
	RateLimitedCount int

	RateLimitUntil *time.Time
	Priority       int
	Notes          string
}

func (AccountRecord) TableName() string { return "twitter_accounts" }
