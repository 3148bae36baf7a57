// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	Collection string
	Enabled    bool
}

type TypesenseConfig struct {
	Host       string
	Port       int
	APIKey     string
	Collection string
	Enabled    bool
}

// PlatformConfig holds credentials and throttling for one upstream provider
type PlatformConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	RPS     float64
	Burst   int
}

type PlatformsConfig struct {
	ChatGPT    PlatformConfig
	Claude     PlatformConfig
	Perplexity PlatformConfig
	Gemini     PlatformConfig
}

type CrawlConfig struct {
	DefaultPlatforms []string
	Concurrency      int
	RequestTimeout   time.Duration
	RetryInitial     time.Duration
	RetryMaxInterval time.Duration
	RetryMaxElapsed  time.Duration
	SweepDelay       time.Duration
	Cron             string
	CompetitorCron   string
}

// ScoringConfig holds the overall score weights; see scoring.Weights
type ScoringConfig struct {
	MentionWeight   float64
	PositionWeight  float64
	SentimentWeight float64
	CitationWeight  float64
}

type AnalyzerConfig struct {
	Mode            string // "regex" or "structured"
	StructuredModel string
	LegacyNeutral   bool
}

type Config struct {
	Port              string
	Environment       string
	LogLevel          string
	InngestEventKey   string
	InngestSigningKey string
	CronSecret        string
	SlackWebhookURL   string
	EmbeddingModel    string
	TimeZone          string
	Database          DatabaseConfig
	Platforms         PlatformsConfig
	Crawl             CrawlConfig
	Scoring           ScoringConfig
	Analyzer          AnalyzerConfig
	Qdrant            QdrantConfig
	Typesense         TypesenseConfig
}

// Location is the zone that defines a calendar day for daily scores.
// An unknown zone falls back to the process local zone.
func (c *Config) Location() *time.Location {
	if c.TimeZone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
}

// DSN renders the lib/pq keyword connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func Load() *Config {
	config := &Config{
		Port:              getEnv("PORT", "8000"),
		Environment:       getEnv("ENVIRONMENT", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		InngestEventKey:   os.Getenv("INNGEST_EVENT_KEY"),
		InngestSigningKey: os.Getenv("INNGEST_SIGNING_KEY"),
		CronSecret:        os.Getenv("CRON_SECRET"),
		SlackWebhookURL:   os.Getenv("SLACK_WEBHOOK_URL"),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		TimeZone:          getEnv("TIME_ZONE", "Asia/Seoul"),
	}

	dbConfig, err := parseDatabaseConfig()
	if err != nil {
		dbConfig = DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "patient_signal"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getEnvInt("DB_CONN_MAX_LIFETIME", 300),
		}
	}
	config.Database = dbConfig

	config.Platforms = PlatformsConfig{
		ChatGPT: PlatformConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: os.Getenv("CHATGPT_BASE_URL"),
			Model:   getEnv("CHATGPT_MODEL", "gpt-4o-mini"),
			RPS:     getEnvFloat("CHATGPT_RPS", 2),
			Burst:   getEnvInt("CHATGPT_BURST", 2),
		},
		Claude: PlatformConfig{
			APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
			BaseURL: os.Getenv("CLAUDE_BASE_URL"),
			Model:   getEnv("CLAUDE_MODEL", "claude-3-opus-20240229"),
			RPS:     getEnvFloat("CLAUDE_RPS", 1),
			Burst:   getEnvInt("CLAUDE_BURST", 1),
		},
		Perplexity: PlatformConfig{
			APIKey:  os.Getenv("PERPLEXITY_API_KEY"),
			BaseURL: os.Getenv("PERPLEXITY_BASE_URL"),
			Model:   getEnv("PERPLEXITY_MODEL", "sonar"),
			RPS:     getEnvFloat("PERPLEXITY_RPS", 1),
			Burst:   getEnvInt("PERPLEXITY_BURST", 1),
		},
		Gemini: PlatformConfig{
			APIKey:  os.Getenv("GEMINI_API_KEY"),
			BaseURL: os.Getenv("GEMINI_BASE_URL"),
			Model:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			RPS:     getEnvFloat("GEMINI_RPS", 2),
			Burst:   getEnvInt("GEMINI_BURST", 2),
		},
	}

	config.Crawl = CrawlConfig{
		DefaultPlatforms: getEnvList("DEFAULT_PLATFORMS", []string{"PERPLEXITY"}),
		Concurrency:      getEnvInt("CRAWL_CONCURRENCY", 4),
		RequestTimeout:   getEnvDuration("PLATFORM_TIMEOUT", 60*time.Second),
		RetryInitial:     getEnvDuration("RETRY_INITIAL_INTERVAL", 500*time.Millisecond),
		RetryMaxInterval: getEnvDuration("RETRY_MAX_INTERVAL", 10*time.Second),
		RetryMaxElapsed:  getEnvDuration("RETRY_MAX_ELAPSED", 45*time.Second),
		SweepDelay:       getEnvDuration("SWEEP_HOSPITAL_DELAY", 0),
		Cron:             getEnv("CRAWL_CRON", "0 18 * * *"),
		CompetitorCron:   getEnv("COMPETITOR_CRON", "0 19 * * 1"),
	}

	config.Scoring = ScoringConfig{
		MentionWeight:   getEnvFloat("SCORE_WEIGHT_MENTION", 0.4),
		PositionWeight:  getEnvFloat("SCORE_WEIGHT_POSITION", 0.3),
		SentimentWeight: getEnvFloat("SCORE_WEIGHT_SENTIMENT", 0.2),
		CitationWeight:  getEnvFloat("SCORE_WEIGHT_CITATION", 0.1),
	}

	config.Analyzer = AnalyzerConfig{
		Mode:            getEnv("ANALYZER_MODE", "regex"),
		StructuredModel: getEnv("ANALYZER_MODEL", "gpt-4o-mini"),
		LegacyNeutral:   getEnvBool("SENTIMENT_LEGACY_NEUTRAL", false),
	}

	config.Qdrant = QdrantConfig{
		Host:       getEnv("QDRANT_HOST", "qdrant"),
		Port:       getEnvInt("QDRANT_PORT", 6334),
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		Collection: getEnv("QDRANT_COLLECTION", "ai_responses"),
		Enabled:    getEnvBool("QDRANT_ENABLED", false),
	}
	config.Typesense = TypesenseConfig{
		Host:       getEnv("TYPESENSE_HOST", "typesense"),
		Port:       getEnvInt("TYPESENSE_PORT", 8108),
		APIKey:     getEnv("TYPESENSE_API_KEY", "xyz"),
		Collection: getEnv("TYPESENSE_COLLECTION", "ai_responses"),
		Enabled:    getEnvBool("TYPESENSE_ENABLED", false),
	}

	return config
}

func parseDatabaseConfig() (DatabaseConfig, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return DatabaseConfig{}, fmt.Errorf("DATABASE_URL not set")
	}

	parsedURL, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if len(parsedURL.Path) < 2 {
		return DatabaseConfig{}, fmt.Errorf("DATABASE_URL has no database name")
	}

	sslMode := parsedURL.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = getEnv("DB_SSLMODE", "require")
	}

	config := DatabaseConfig{
		Host:            parsedURL.Hostname(),
		Port:            5432,
		User:            parsedURL.User.Username(),
		Name:            parsedURL.Path[1:],
		SSLMode:         sslMode,
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 25),
		ConnMaxLifetime: getEnvInt("DB_CONN_MAX_LIFETIME", 300),
	}

	if password, ok := parsedURL.User.Password(); ok {
		config.Password = password
	}

	if parsedURL.Port() != "" {
		if port, err := strconv.Atoi(parsedURL.Port()); err == nil {
			config.Port = port
		}
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
