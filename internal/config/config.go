package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonathanavis96/ranksentinel-sub002/internal/domain"
)

const (
	defaultTimezone  = "UTC"
	configPathEnv    = "RANKSENTINEL_CONFIG"
	databasePathEnv  = "RANKSENTINEL_DB_PATH"
	mailgunAPIKeyEnv = "MAILGUN_API_KEY"
	psiAPIKeyEnv     = "PSI_API_KEY"
	operatorEmailEnv = "RANKSENTINEL_OPERATOR_EMAIL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging    LoggingConfig   `yaml:"logging"`
	Database   DatabaseConfig  `yaml:"database"`
	Scheduler  SchedulerConfig `yaml:"scheduler"`
	Crawl      CrawlConfig     `yaml:"crawl"`
	Retry      RetryConfig     `yaml:"retry"`
	Thresholds ThresholdConfig `yaml:"thresholds"`
	PSI        PSIConfig       `yaml:"psi"`
	Mailgun    MailgunConfig   `yaml:"mailgun"`
	Retention  RetentionConfig `yaml:"retention"`
}

// LoggingConfig selects log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig describes the SQLite file location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SchedulerConfig defines when the daily and weekly runs trigger.
type SchedulerConfig struct {
	DailyCron  string         `yaml:"dailyCron"`
	WeeklyCron string         `yaml:"weeklyCron"`
	Timezone   string         `yaml:"timezone"`
	location   *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// CrawlConfig bounds how much work one run may do per customer.
type CrawlConfig struct {
	WeeklyBudget          int    `yaml:"weeklyBudget"`
	CustomerWorkers       int    `yaml:"customerWorkers"`
	URLWorkers            int    `yaml:"urlWorkers"`
	RequestTimeoutSeconds int    `yaml:"requestTimeoutSeconds"`
	MaxContentBytes       int64  `yaml:"maxContentBytes"`
	LinkAuditLimit        int    `yaml:"linkAuditLimit"`
	UserAgent             string `yaml:"userAgent"`
}

// RetryConfig bounds retries of outbound fetches and API calls.
type RetryConfig struct {
	MaxAttempts           int `yaml:"maxAttempts"`
	InitialBackoffSeconds int `yaml:"initialBackoffSeconds"`
}

// ThresholdConfig carries the product-default classification thresholds.
// Per-customer settings rows override these at run time.
type ThresholdConfig struct {
	PSIPerfDrop             float64 `yaml:"psiPerfDrop"`
	PSILCPIncreaseMS        float64 `yaml:"psiLcpIncreaseMs"`
	PSIConfirmRuns          int     `yaml:"psiConfirmRuns"`
	SitemapDrasticDropRatio float64 `yaml:"sitemapDrasticDropRatio"`
	StatusSpikeCount        int     `yaml:"statusSpikeCount"`
}

// PSIConfig defines how to contact the PageSpeed Insights API.
type PSIConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
	Strategy string `yaml:"strategy"`
}

// MailgunConfig wires all data required to send digest emails.
type MailgunConfig struct {
	Endpoint      string `yaml:"endpoint"`
	Domain        string `yaml:"domain"`
	APIKey        string `yaml:"apiKey"`
	From          string `yaml:"from"`
	OperatorEmail string `yaml:"operatorEmail"`
}

// RetentionConfig sets how long cancelled customers' data is kept.
type RetentionConfig struct {
	Days int `yaml:"days"`
}

// ClassificationDefaults maps the threshold section onto the domain config
// consumed by the classifier and confirmer.
func (c Config) ClassificationDefaults() domain.ClassificationConfig {
	return domain.ClassificationConfig{
		PSIPerfDropThreshold:      c.Thresholds.PSIPerfDrop,
		PSILCPIncreaseThresholdMS: c.Thresholds.PSILCPIncreaseMS,
		PSIConfirmRuns:            c.Thresholds.PSIConfirmRuns,
		SitemapDrasticDropRatio:   c.Thresholds.SitemapDrasticDropRatio,
		StatusSpikeCount:          c.Thresholds.StatusSpikeCount,
	}
}

// Load reads YAML configuration (if present) and applies environment
// overrides. An empty path falls back to the RANKSENTINEL_CONFIG variable.
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv(mailgunAPIKeyEnv); v != "" {
		c.Mailgun.APIKey = v
	}

	if v := os.Getenv(psiAPIKeyEnv); v != "" {
		c.PSI.APIKey = v
	}

	if v := os.Getenv(operatorEmailEnv); v != "" {
		c.Mailgun.OperatorEmail = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}

	if override.Database.Path != "" {
		base.Database = override.Database
	}

	if override.Scheduler.DailyCron != "" {
		base.Scheduler.DailyCron = override.Scheduler.DailyCron
	}
	if override.Scheduler.WeeklyCron != "" {
		base.Scheduler.WeeklyCron = override.Scheduler.WeeklyCron
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Crawl.WeeklyBudget > 0 {
		base.Crawl.WeeklyBudget = override.Crawl.WeeklyBudget
	}
	if override.Crawl.CustomerWorkers > 0 {
		base.Crawl.CustomerWorkers = override.Crawl.CustomerWorkers
	}
	if override.Crawl.URLWorkers > 0 {
		base.Crawl.URLWorkers = override.Crawl.URLWorkers
	}
	if override.Crawl.RequestTimeoutSeconds > 0 {
		base.Crawl.RequestTimeoutSeconds = override.Crawl.RequestTimeoutSeconds
	}
	if override.Crawl.MaxContentBytes > 0 {
		base.Crawl.MaxContentBytes = override.Crawl.MaxContentBytes
	}
	if override.Crawl.LinkAuditLimit > 0 {
		base.Crawl.LinkAuditLimit = override.Crawl.LinkAuditLimit
	}
	if override.Crawl.UserAgent != "" {
		base.Crawl.UserAgent = override.Crawl.UserAgent
	}

	if override.Retry.MaxAttempts > 0 {
		base.Retry.MaxAttempts = override.Retry.MaxAttempts
	}
	if override.Retry.InitialBackoffSeconds > 0 {
		base.Retry.InitialBackoffSeconds = override.Retry.InitialBackoffSeconds
	}

	if override.Thresholds.PSIPerfDrop > 0 {
		base.Thresholds.PSIPerfDrop = override.Thresholds.PSIPerfDrop
	}
	if override.Thresholds.PSILCPIncreaseMS > 0 {
		base.Thresholds.PSILCPIncreaseMS = override.Thresholds.PSILCPIncreaseMS
	}
	if override.Thresholds.PSIConfirmRuns > 0 {
		base.Thresholds.PSIConfirmRuns = override.Thresholds.PSIConfirmRuns
	}
	if override.Thresholds.SitemapDrasticDropRatio > 0 {
		base.Thresholds.SitemapDrasticDropRatio = override.Thresholds.SitemapDrasticDropRatio
	}
	if override.Thresholds.StatusSpikeCount > 0 {
		base.Thresholds.StatusSpikeCount = override.Thresholds.StatusSpikeCount
	}

	if override.PSI.Endpoint != "" {
		base.PSI.Endpoint = override.PSI.Endpoint
	}
	if override.PSI.APIKey != "" {
		base.PSI.APIKey = override.PSI.APIKey
	}
	if override.PSI.Strategy != "" {
		base.PSI.Strategy = override.PSI.Strategy
	}

	if override.Mailgun.Endpoint != "" {
		base.Mailgun.Endpoint = override.Mailgun.Endpoint
	}
	if override.Mailgun.Domain != "" {
		base.Mailgun.Domain = override.Mailgun.Domain
	}
	if override.Mailgun.APIKey != "" {
		base.Mailgun.APIKey = override.Mailgun.APIKey
	}
	if override.Mailgun.From != "" {
		base.Mailgun.From = override.Mailgun.From
	}
	if override.Mailgun.OperatorEmail != "" {
		base.Mailgun.OperatorEmail = override.Mailgun.OperatorEmail
	}

	if override.Retention.Days > 0 {
		base.Retention.Days = override.Retention.Days
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		Database: DatabaseConfig{Path: "ranksentinel.db"},
		Scheduler: SchedulerConfig{
			DailyCron:  "0 6 * * *",
			WeeklyCron: "30 6 * * 1",
			Timezone:   defaultTimezone,
			location:   tz,
		},
		Crawl: CrawlConfig{
			WeeklyBudget:          100,
			CustomerWorkers:       4,
			URLWorkers:            4,
			RequestTimeoutSeconds: 20,
			MaxContentBytes:       2 << 20,
			LinkAuditLimit:        200,
			UserAgent:             "RankSentinelBot/1.0 (+https://ranksentinel.io/bot)",
		},
		Retry: RetryConfig{MaxAttempts: 3, InitialBackoffSeconds: 1},
		Thresholds: ThresholdConfig{
			PSIPerfDrop:             10,
			PSILCPIncreaseMS:        800,
			PSIConfirmRuns:          2,
			SitemapDrasticDropRatio: 0.30,
			StatusSpikeCount:        3,
		},
		PSI: PSIConfig{
			Endpoint: "https://www.googleapis.com/pagespeedonline/v5/runPagespeed",
			APIKey:   "",
			Strategy: "mobile",
		},
		Mailgun: MailgunConfig{
			Endpoint: "https://api.mailgun.net/v3",
			From:     "RankSentinel Alerts <alerts@ranksentinel.io>",
		},
		Retention: RetentionConfig{Days: 30},
	}
}
