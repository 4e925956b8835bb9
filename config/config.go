package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the leadscope service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Databases DatabasesConfig `mapstructure:"databases"`
	LinkedIn  LinkedInConfig  `mapstructure:"linkedin"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Learning  LearningConfig  `mapstructure:"learning"`
	Enrich    EnrichConfig    `mapstructure:"enrich"`
	Search    SearchConfig    `mapstructure:"search"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Env       string `mapstructure:"env"` // dev or prod
	Listen    string `mapstructure:"listen"`
	JWTSecret string `mapstructure:"jwt_secret"`
	LogLevel  string `mapstructure:"log_level"`
}

// DatabasesConfig groups the backing stores.
type DatabasesConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings. URL wins over the
// discrete fields when set.
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DSN assembles a postgres:// connection string from the configured fields.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (databases.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host    string        `mapstructure:"host"`
	Port    string        `mapstructure:"port"`
	Pass    string        `mapstructure:"pass"`
	DB      int           `mapstructure:"db"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LinkedInConfig configures the RapidAPI LinkedIn client.
type LinkedInConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Host        string        `mapstructure:"host"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxComments int           `mapstructure:"max_comments"`
}

// ScoringConfig carries the relevance-score weights. Defaults mirror the
// documented rubric: +3.0 per boost term, -2.0 per down term.
type ScoringConfig struct {
	BoostWeight        float64 `mapstructure:"boost_weight"`
	DownWeight         float64 `mapstructure:"down_weight"`
	EngagementCap      float64 `mapstructure:"engagement_cap"`
	CompletenessCap    float64 `mapstructure:"completeness_cap"`
	PatternAdjustLimit float64 `mapstructure:"pattern_adjust_limit"`
}

// Normalize applies rubric defaults for unset scoring weights.
func (c ScoringConfig) Normalize() ScoringConfig {
	if c.BoostWeight <= 0 {
		c.BoostWeight = 3.0
	}
	if c.DownWeight <= 0 {
		c.DownWeight = 2.0
	}
	if c.EngagementCap <= 0 {
		c.EngagementCap = 1.5
	}
	if c.CompletenessCap <= 0 {
		c.CompletenessCap = 1.0
	}
	if c.PatternAdjustLimit <= 0 {
		c.PatternAdjustLimit = 1.0
	}
	return c
}

// LearningConfig controls the feedback aggregation job.
type LearningConfig struct {
	ScheduleCron     string  `mapstructure:"schedule_cron"`
	MinSupport       int     `mapstructure:"min_support"`
	PromoteThreshold float64 `mapstructure:"promote_threshold"`
	BatchSize        int     `mapstructure:"batch_size"`
}

// Normalize applies defaults for unset learning values.
func (c LearningConfig) Normalize() LearningConfig {
	if c.ScheduleCron == "" {
		c.ScheduleCron = "@hourly"
	}
	if c.MinSupport <= 0 {
		c.MinSupport = 3
	}
	if c.PromoteThreshold <= 0 {
		c.PromoteThreshold = 0.7
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 200
	}
	return c
}

// EnrichConfig controls shared-content enrichment of comment text.
type EnrichConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	UseBrowser bool          `mapstructure:"use_browser"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxChars   int           `mapstructure:"max_chars"`
}

// Normalize applies defaults for unset enrichment values.
func (c EnrichConfig) Normalize() EnrichConfig {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxChars <= 0 {
		c.MaxChars = 4000
	}
	return c
}

// SearchConfig configures the commenter keyword index. An empty path keeps
// the index in memory.
type SearchConfig struct {
	IndexPath string `mapstructure:"index_path"`
}

// Validate checks the settings a running server cannot do without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.General.JWTSecret) == "" {
		return fmt.Errorf("jwt secret not configured (general.jwt_secret)")
	}
	if _, err := c.Databases.Postgres.DSN(); err != nil {
		return err
	}
	return nil
}

// LoadConfig reads configuration from a JSON file plus LEADSCOPE_* env
// overrides. Path may be empty, in which case the usual locations are tried.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("general.env", "dev")
	viper.SetDefault("general.listen", ":10010")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("databases.postgres.sslmode", "disable")
	viper.SetDefault("databases.redis.db", 0)
	viper.SetDefault("linkedin.timeout", "30s")
	viper.SetDefault("linkedin.max_comments", 100)
	viper.SetDefault("scoring.boost_weight", 3.0)
	viper.SetDefault("scoring.down_weight", 2.0)
	viper.SetDefault("learning.schedule_cron", "@hourly")
	viper.SetDefault("enrich.enabled", false)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("LEADSCOPE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Env-only deployments are fine; a broken file is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(fmt.Errorf("fatal error unmarshalling config: %w", err))
	}
	cfg.Scoring = cfg.Scoring.Normalize()
	cfg.Learning = cfg.Learning.Normalize()
	cfg.Enrich = cfg.Enrich.Normalize()
	return &cfg
}
