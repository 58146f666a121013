package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config holds all application configuration loaded from environment variables
// and, optionally, a YAML source profile.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	S3Bucket      string
	S3Prefix      string
	S3Region      string
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	PublicBaseURL string

	Source SourceProfile

	ListingDelay   time.Duration
	PageDelay      time.Duration
	MaxPages       int
	MaxImages      int
	MatchThreshold float64

	MaxRetries     int
	RetryBaseDelay time.Duration
	HTTPTimeout    time.Duration
	ImageTimeout   time.Duration
	MaxImageBytes  int64
	FetchMode      string
	ChromeBin      string

	CSVOutputPath  string
	HTTPAddr       string
	JobMinInterval time.Duration
}

// Load reads the .env file and returns a populated Config struct.
// SOURCE_PROFILE names an optional YAML file overriding the source section.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "importer"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "importer123"),
		PostgresDB:       getEnv("POSTGRES_DB", "imoveis"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		S3Bucket:      getEnv("S3_BUCKET", "property-images"),
		S3Prefix:      getEnv("S3_PREFIX", ""),
		S3Region:      getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:    getEnv("S3_ENDPOINT", ""),
		S3AccessKey:   getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:   getEnv("S3_SECRET_KEY", ""),
		PublicBaseURL: getEnv("STORAGE_PUBLIC_URL", ""),

		Source: SourceProfile{
			BaseURL:       getEnv("SOURCE_BASE_URL", ""),
			IndexTemplate: getEnv("SOURCE_INDEX_TEMPLATE", ""),
			DetailSegment: getEnv("SOURCE_DETAIL_SEGMENT", "/imovel/"),
			IndexSegment:  getEnv("SOURCE_INDEX_SEGMENT", "/imoveis/"),
			UserAgent:     getEnv("USER_AGENT", defaultUserAgent),
		},

		ListingDelay:   getEnvMillis("LISTING_DELAY_MS", 1500),
		PageDelay:      getEnvMillis("PAGE_DELAY_MS", 4000),
		MaxPages:       getEnvInt("MAX_PAGES", 10),
		MaxImages:      getEnvInt("MAX_IMAGES_PER_LISTING", 15),
		MatchThreshold: getEnvFloat("MATCH_THRESHOLD", 0.5),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		RetryBaseDelay: getEnvMillis("RETRY_BASE_DELAY_MS", 2000),
		HTTPTimeout:    getEnvMillis("HTTP_TIMEOUT_MS", 30000),
		ImageTimeout:   getEnvMillis("IMAGE_TIMEOUT_MS", 20000),
		MaxImageBytes:  int64(getEnvInt("MAX_IMAGE_BYTES", 15<<20)),
		FetchMode:      getEnv("FETCH_MODE", "http"),
		ChromeBin:      getEnv("CHROME_BIN", ""),

		CSVOutputPath:  getEnv("CSV_OUTPUT_PATH", ""),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		JobMinInterval: getEnvMillis("JOB_MIN_INTERVAL_MS", 60000),
	}

	if path := getEnv("SOURCE_PROFILE", ""); path != "" {
		profile, err := LoadProfile(path)
		if err != nil {
			return nil, err
		}
		cfg.Source = cfg.Source.Merge(profile)
	}

	if cfg.Source.IndexTemplate == "" && cfg.Source.BaseURL != "" {
		cfg.Source.IndexTemplate = strings.TrimSuffix(cfg.Source.BaseURL, "/") + "/imoveis/{page}"
	}

	return cfg, cfg.Validate()
}

// Validate checks the settings a crawl cannot run without.
func (c *Config) Validate() error {
	if c.MaxPages < 1 {
		return fmt.Errorf("config: MAX_PAGES must be >= 1, got %d", c.MaxPages)
	}
	if c.MaxImages < 0 {
		return fmt.Errorf("config: MAX_IMAGES_PER_LISTING must be >= 0, got %d", c.MaxImages)
	}
	if c.MatchThreshold <= 0 || c.MatchThreshold >= 1 {
		return fmt.Errorf("config: MATCH_THRESHOLD must be in (0,1), got %v", c.MatchThreshold)
	}
	switch c.FetchMode {
	case "http", "browser":
	default:
		return fmt.Errorf("config: FETCH_MODE must be http or browser, got %q", c.FetchMode)
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Millisecond
}
