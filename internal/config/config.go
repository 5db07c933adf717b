// Package config reads process configuration from .env files, the
// environment and, for terminals, an optional YAML profile.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadEnv loads .env (or the files given) into the environment. A missing
// file is not an error; real environment variables always win.
func LoadEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		slog.Warn("no .env file found, relying on environment", "err", err)
	}
}

// BackOffice configures cmd/backoffice.
type BackOffice struct {
	Port        string
	BaseURL     string
	DBDriver    string
	DBDSN       string
	APIKey      string
	APIKeyHash  string
	Permissive  bool
	JWTSecret   string
	TokenTTL    time.Duration
	CORSOrigins []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	UploadDir string
	S3        S3

	GeminiAPIKey string
}

type S3 struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	PublicURL       string
	UsePathStyle    bool
}

func (s S3) Enabled() bool { return s.Bucket != "" }

// BackOfficeFromEnv reads the back-office settings.
func BackOfficeFromEnv() (BackOffice, error) {
	cfg := BackOffice{
		Port:          getenv("PORT", "8080"),
		BaseURL:       getenv("BASE_URL", ""),
		DBDriver:      getenv("DB_DRIVER", "mysql"),
		DBDSN:         os.Getenv("DB_DSN"),
		APIKey:        os.Getenv("SYNC_API_KEY"),
		APIKeyHash:    os.Getenv("SYNC_API_KEY_HASH"),
		Permissive:    strings.EqualFold(os.Getenv("SYNC_AUTH_MODE"), "permissive"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		CORSOrigins:   splitList(getenv("CORS_ORIGINS", "http://localhost:5173")),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		UploadDir:     getenv("UPLOAD_DIR", "./uploads"),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		S3: S3{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getenv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			Prefix:          os.Getenv("S3_PREFIX"),
			PublicURL:       os.Getenv("S3_PUBLIC_URL"),
			UsePathStyle:    strings.EqualFold(os.Getenv("S3_USE_PATH_STYLE"), "true"),
		},
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:" + cfg.Port
	}

	var err error
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return cfg, err
	}
	if cfg.CacheTTL, err = getDuration("PRODUCT_CACHE_TTL", 5*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.TokenTTL, err = getDuration("JWT_TTL", 24*time.Hour); err != nil {
		return cfg, err
	}

	if cfg.DBDSN == "" {
		return cfg, fmt.Errorf("DB_DSN is required")
	}
	if cfg.APIKey == "" && cfg.APIKeyHash == "" && !cfg.Permissive {
		return cfg, fmt.Errorf("SYNC_API_KEY or SYNC_API_KEY_HASH is required unless SYNC_AUTH_MODE=permissive")
	}
	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

// Terminal configures cmd/terminal. Fields can come from a YAML profile
// file and are then overridden by environment variables.
type Terminal struct {
	PeerID         string        `yaml:"peer_id"`
	Profile        string        `yaml:"profile"` // desktop or mobile
	DataPath       string        `yaml:"data_path"`
	BackOfficeURL  string        `yaml:"backoffice_url"`
	APIKey         string        `yaml:"api_key"`
	Interval       time.Duration `yaml:"interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Notifications  bool          `yaml:"notifications"`
}

const (
	ProfileDesktop = "desktop"
	ProfileMobile  = "mobile"
)

// DefaultInterval returns the sync period of a terminal profile.
func DefaultInterval(profile string) time.Duration {
	if profile == ProfileMobile {
		return 30 * time.Second
	}
	return 10 * time.Second
}

// TerminalFromFile reads an optional YAML profile (path may be empty) and
// applies environment overrides.
func TerminalFromFile(path string) (Terminal, error) {
	var cfg Terminal
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read terminal profile: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse terminal profile %s: %w", path, err)
		}
	}

	override(&cfg.PeerID, "PEER_ID")
	override(&cfg.Profile, "PEER_PROFILE")
	override(&cfg.DataPath, "DATA_PATH")
	override(&cfg.BackOfficeURL, "BACKOFFICE_URL")
	override(&cfg.APIKey, "SYNC_API_KEY")
	if v := os.Getenv("SYNC_NOTIFICATIONS"); v != "" {
		cfg.Notifications = strings.EqualFold(v, "true")
	}

	if cfg.Profile == "" {
		cfg.Profile = ProfileDesktop
	}
	if cfg.Profile != ProfileDesktop && cfg.Profile != ProfileMobile {
		return cfg, fmt.Errorf("invalid profile %q (allowed: desktop, mobile)", cfg.Profile)
	}
	if cfg.DataPath == "" {
		cfg.DataPath = cfg.Profile + ".db"
	}

	var err error
	if cfg.Interval, err = getDuration("SYNC_INTERVAL", cfg.Interval); err != nil {
		return cfg, err
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval(cfg.Profile)
	}
	if cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", cfg.RequestTimeout); err != nil {
		return cfg, err
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	cfg.BackOfficeURL = strings.TrimRight(cfg.BackOfficeURL, "/")
	return cfg, nil
}

// Resolved reports whether the terminal knows where and how to sync.
func (t Terminal) Resolved() bool { return t.BackOfficeURL != "" && t.APIKey != "" }

func override(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
