package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/qs-lzh/cave-sale/internal/util"
)

type Config struct {
	DatabaseDSN string
	Addr        string
	CacheURL    string
	MQURL       string
	CORSOrigins []string

	Log    LogConfig
	Reaper ReaperConfig
	Rarity RarityConfig
}

type LogConfig struct {
	AppEnv string
	Level  string
}

// ReaperConfig drives the periodic expiry sweep. Schedule is a robfig/cron spec.
type ReaperConfig struct {
	Schedule     string
	BatchSize    int
	SweepTimeout time.Duration
}

// RarityConfig holds the score thresholds of the rarity heuristic.
type RarityConfig struct {
	Legendary float64
	Epic      float64
	Rare      float64
}

// Validate requires the thresholds to be non-negative and ordered legendary >= epic >= rare.
func (c RarityConfig) Validate() error {
	if c.Rare < 0 || c.Epic < c.Rare || c.Legendary < c.Epic {
		return fmt.Errorf("rarity thresholds must satisfy legendary >= epic >= rare >= 0, got %v/%v/%v",
			c.Legendary, c.Epic, c.Rare)
	}
	return nil
}

func LoadConfig() (*Config, error) {
	if err := util.LoadEnv(); err != nil {
		return nil, err
	}
	databaseDSN := os.Getenv("DATABASE_DSN")
	addr := envString("ADDR", ":4000")
	cacheURL := envString("CACHE_URL", "localhost:6379")
	mqURL := os.Getenv("RABBIT_MQ_URL")
	rarity := GetRarityConfig()
	if err := rarity.Validate(); err != nil {
		return nil, err
	}
	return &Config{
		DatabaseDSN: databaseDSN,
		Addr:        addr,
		CacheURL:    cacheURL,
		MQURL:       mqURL,
		CORSOrigins: envList("CORS_ORIGINS", []string{"*"}),
		Log:         GetLogConfig(),
		Reaper:      GetReaperConfig(),
		Rarity:      rarity,
	}, nil
}

func GetLogConfig() LogConfig {
	appEnv := os.Getenv("APP_ENV")
	if appEnv != "local" {
		appEnv = "prod"
	}
	return LogConfig{
		AppEnv: appEnv,
		Level:  envString("LOG_LEVEL", "info"),
	}
}

func GetReaperConfig() ReaperConfig {
	return ReaperConfig{
		Schedule:     envString("REAPER_SCHEDULE", "@every 15s"),
		BatchSize:    envInt("REAPER_BATCH", 200),
		SweepTimeout: envDuration("REAPER_SWEEP_TIMEOUT", 10*time.Second),
	}
}

func GetRarityConfig() RarityConfig {
	return RarityConfig{
		Legendary: envFloat("RARITY_LEGENDARY", 80),
		Epic:      envFloat("RARITY_EPIC", 50),
		Rare:      envFloat("RARITY_RARE", 25),
	}
}

func envString(key, def string) string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	return raw
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 {
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envList(key string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
