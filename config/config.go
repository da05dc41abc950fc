package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// AppConfig carries everything the engine reads at boot. Secrets have no
// code defaults; they come from config/config.json or the environment.
type AppConfig struct {
	AppPort   string
	JWTSecret string
	// ServiceTokens authorize feature modules (food, workout, biofeedback,
	// steps, milestones) to call the award endpoint and internal reads.
	ServiceTokens []string

	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string

	RateLimitPerMinute int
	AllowedOrigins     []string

	GinMode string
	GinPath string

	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string

	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool

	// Summary reads tolerate at most this much staleness; every award
	// invalidates the affected user's keys anyway.
	SummaryCacheTTLSeconds int

	ReconcileIntervalMinutes int
	ReconcileBatchSize       int
	ReconcileAutoFix         bool
}

// fileConfig mirrors config/config.json. Matching relies on the stdlib's
// case-insensitive field resolution, so the file can use natural key names.
type fileConfig struct {
	App struct {
		AppPort                string
		JWTSecret              string
		RateLimitPerMinute     int
		SummaryCacheTTLSeconds int
		AllowedOrigins         []string
		ServiceTokens          []string
	}
	Gin struct {
		Mode    string
		LogPath string
	}
	Database struct {
		DatabaseURI string
		DBHost      string
		DBPort      string
		DBUser      string
		DBPassword  string
		DBName      string
	}
	Redis struct {
		RedisHost     string
		RedisPort     int
		RedisDB       int
		RedisPassword string
	}
	Log struct {
		Level      string
		Path       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
		Compress   bool
	}
	Reconcile struct {
		IntervalMinutes int
		BatchSize       int
		AutoFix         bool
	}
}

var (
	cfg    AppConfig
	loaded bool
)

// Load resolves the configuration once: config/config.json first, then code
// defaults for anything unset, then environment overrides on top.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	readConfigFile(filepath.Join("config", "config.json"), &cfg)
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it on first use.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// readConfigFile merges the JSON file into out. A missing file is fine;
// malformed JSON is fatal because booting half-configured is worse.
func readConfigFile(path string, out *AppConfig) {
	b, err := os.ReadFile(path)
	if err != nil {
		return
	}

	var fc fileConfig
	if err := json.Unmarshal(b, &fc); err != nil {
		log.Fatalf("unreadable config file %s: %v", path, err)
	}

	out.AppPort = fc.App.AppPort
	out.JWTSecret = fc.App.JWTSecret
	out.RateLimitPerMinute = fc.App.RateLimitPerMinute
	out.SummaryCacheTTLSeconds = fc.App.SummaryCacheTTLSeconds
	out.AllowedOrigins = fc.App.AllowedOrigins
	out.ServiceTokens = fc.App.ServiceTokens

	out.GinMode = fc.Gin.Mode
	out.GinPath = fc.Gin.LogPath

	out.DatabaseURI = fc.Database.DatabaseURI
	out.DBHost = fc.Database.DBHost
	out.DBPort = fc.Database.DBPort
	out.DBUser = fc.Database.DBUser
	out.DBPassword = fc.Database.DBPassword
	out.DBName = fc.Database.DBName

	out.RedisHost = fc.Redis.RedisHost
	out.RedisPort = fc.Redis.RedisPort
	out.RedisDB = fc.Redis.RedisDB
	out.RedisPassword = fc.Redis.RedisPassword

	out.LogLevel = fc.Log.Level
	out.LogPath = fc.Log.Path
	out.LogMaxSizeMB = fc.Log.MaxSizeMB
	out.LogMaxBackups = fc.Log.MaxBackups
	out.LogMaxAgeDays = fc.Log.MaxAgeDays
	out.LogCompress = fc.Log.Compress

	out.ReconcileIntervalMinutes = fc.Reconcile.IntervalMinutes
	out.ReconcileBatchSize = fc.Reconcile.BatchSize
	out.ReconcileAutoFix = fc.Reconcile.AutoFix
}

// applyDefaults fills every zero field that has a safe default. Secrets and
// passwords deliberately have none.
func applyDefaults(c *AppConfig) {
	str := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	num := func(dst *int, def int) {
		if *dst == 0 {
			*dst = def
		}
	}

	str(&c.AppPort, "8080")
	str(&c.GinMode, "release")
	str(&c.GinPath, "logs/points_access.log")
	num(&c.RateLimitPerMinute, 60)
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}

	str(&c.DBHost, "127.0.0.1")
	str(&c.DBPort, "3306")
	str(&c.DBUser, "root")
	str(&c.DBName, "vitalog_points")

	str(&c.RedisHost, "127.0.0.1")
	num(&c.RedisPort, 6379)

	str(&c.LogLevel, "info")
	num(&c.LogMaxSizeMB, 100)
	num(&c.LogMaxBackups, 3)
	num(&c.LogMaxAgeDays, 7)

	num(&c.SummaryCacheTTLSeconds, 60)
	num(&c.ReconcileIntervalMinutes, 360)
	num(&c.ReconcileBatchSize, 500)
}

// applyEnvOverrides lets the environment win over file values and defaults.
func applyEnvOverrides(c *AppConfig) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				log.Fatalf("%s must be an integer, got %q", key, v)
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}
	list := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			*dst = splitAndTrim(v)
		}
	}

	str("APP_PORT", &c.AppPort)
	str("JWT_SECRET", &c.JWTSecret)
	list("SERVICE_TOKENS", &c.ServiceTokens)
	str("GIN_MODE", &c.GinMode)
	str("GIN_PATH", &c.GinPath)

	str("DATABASE_URI", &c.DatabaseURI)
	str("DB_HOST", &c.DBHost)
	str("DB_PORT", &c.DBPort)
	str("DB_USER", &c.DBUser)
	str("DB_PASSWORD", &c.DBPassword)
	str("DB_NAME", &c.DBName)

	num("RATE_LIMIT_PER_MINUTE", &c.RateLimitPerMinute)
	list("CORS_ALLOWED_ORIGINS", &c.AllowedOrigins)

	str("REDIS_HOST", &c.RedisHost)
	num("REDIS_PORT", &c.RedisPort)
	num("REDIS_DB", &c.RedisDB)
	str("REDIS_PASSWORD", &c.RedisPassword)

	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_PATH", &c.LogPath)
	num("LOG_MAX_SIZE_MB", &c.LogMaxSizeMB)
	num("LOG_MAX_BACKUPS", &c.LogMaxBackups)
	num("LOG_MAX_AGE_DAYS", &c.LogMaxAgeDays)
	flag("LOG_COMPRESS", &c.LogCompress)

	num("SUMMARY_CACHE_TTL_SECONDS", &c.SummaryCacheTTLSeconds)
	num("RECONCILE_INTERVAL_MINUTES", &c.ReconcileIntervalMinutes)
	num("RECONCILE_BATCH_SIZE", &c.ReconcileBatchSize)
	flag("RECONCILE_AUTO_FIX", &c.ReconcileAutoFix)
}

func splitAndTrim(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
