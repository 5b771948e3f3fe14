package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultWards are the ward labels shown on the occupancy widget even when no bed exists yet.
var DefaultWards = []string{"ICU", "General Ward", "Pediatrics", "Maternity", "Emergency"}

// Config holds the application's configuration values.
type Config struct {
	AppName       string        `json:"appname"`
	AppEnv        string        `json:"appenv"`
	AppPort       uint16        `json:"appport"`
	GinMode       string        `json:"ginmode"`
	DBHost        string        `json:"dbhost"`
	DBPort        uint16        `json:"dbport"`
	DBName        string        `json:"dbname"`
	DBUSER        string        `json:"dbuser"`
	DBPass        string        `json:"dbpass"`
	JWTSecret     string        `json:"-"`
	LogLevel      string        `json:"loglevel"`
	Wards         []string      `json:"wards"`
	StatsCacheTTL time.Duration `json:"stats_cache_ttl"`
	SSEHeartbeat  time.Duration `json:"sse_heartbeat"`
	RateLimit     int           `json:"rate_limit"`
	RateWindow    time.Duration `json:"rate_window"`
}

var config *Config
var once sync.Once

// LoadConfig loads the environment variables from a .env file, and returns a singleton Config instance.
func LoadConfig() *Config {
	once.Do(func() {
		// A missing .env is fine: containers and tests pass plain environment variables.
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("Error loading .env file")
		}

		appPort, _ := strconv.ParseUint(os.Getenv("APPPORT"), 10, 16)
		dbPort, _ := strconv.ParseUint(os.Getenv("DBPORT"), 10, 16)
		rateLimit, _ := strconv.Atoi(os.Getenv("RATE_LIMIT"))

		config = &Config{
			AppName:       getEnv("APPNAME", "Hospital Dashboard"),
			AppEnv:        getEnv("APPENV", "development"),
			AppPort:       uint16(appPort),
			GinMode:       getEnv("GINMODE", "debug"),
			DBHost:        os.Getenv("DBHOST"),
			DBPort:        uint16(dbPort),
			DBName:        os.Getenv("DBNAME"),
			DBUSER:        os.Getenv("DBUSER"),
			DBPass:        os.Getenv("DBPASS"),
			JWTSecret:     os.Getenv("JWTSECRET"),
			LogLevel:      getEnv("LOGLEVEL", "info"),
			Wards:         parseList(os.Getenv("WARDS"), DefaultWards),
			StatsCacheTTL: parseDuration(os.Getenv("STATS_CACHE_TTL"), 30*time.Second),
			SSEHeartbeat:  parseDuration(os.Getenv("SSE_HEARTBEAT"), 30*time.Second),
			RateLimit:     rateLimit,
			RateWindow:    parseDuration(os.Getenv("RATE_WINDOW"), 0),
		}
		if config.AppPort == 0 {
			config.AppPort = 8080
		}
	})
	return config
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// parseList splits a comma separated value, dropping blanks. The fallback is returned as a copy.
func parseList(raw string, fallback []string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Warn().Str("value", raw).Dur("fallback", fallback).Msg("invalid duration, using fallback")
		return fallback
	}
	return d
}

// ConnectMySQL establishes a connection to a MySQL database using the configuration values.
// When APPENV is "test" an in-memory SQLite database is opened instead.
func ConnectMySQL() (*gorm.DB, error) {
	cfg := LoadConfig()
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	if os.Getenv("APPENV") == "test" || cfg.AppEnv == "test" {
		return gorm.Open(sqlite.Open("file::memory:?cache=shared"), gormCfg)
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", cfg.DBUSER, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := gorm.Open(mysql.Open(dsn), gormCfg)
	if err != nil {
		return nil, err
	}

	return db, nil
}
