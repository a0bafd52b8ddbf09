package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"kila/internal/dian"
)

type Config struct {
	DBPath    string
	OutputDir string

	ServerAddr     string
	JWTSecret      string
	JWTTTLHours    int
	MaxUploadBytes int64

	// HistoryLimit caps how many validation records are retained.
	HistoryLimit int

	RemoteValidatorURL string
	RemoteTimeoutMs    int
	RemoteRateLimitRPS int

	Rules dian.RuleConfig
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	rules := dian.DefaultRuleConfig()
	rules.ValidIncoterms = getEnvList("DIAN_VALID_INCOTERMS", rules.ValidIncoterms)
	rules.ValidCurrencies = getEnvList("DIAN_VALID_CURRENCIES", rules.ValidCurrencies)
	rules.GenericTerms = getEnvList("DIAN_GENERIC_TERMS", rules.GenericTerms)
	rules.MinDescriptionLength = getEnvInt("DIAN_MIN_DESCRIPTION_LENGTH", rules.MinDescriptionLength)
	rules.PriceTolerancePercent = getEnvFloat("DIAN_PRICE_TOLERANCE_PERCENT", rules.PriceTolerancePercent)
	rules.StrictMode = getEnvBool("DIAN_STRICT_MODE", false)
	rules.DisabledRequirements = getEnvIntList("DIAN_DISABLED_REQUIREMENTS", nil)

	cfg := Config{
		DBPath:    getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		ServerAddr:     getEnv("SERVER_ADDR", ":4000"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		JWTTTLHours:    getEnvInt("JWT_TTL_HOURS", 24),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 10*1024*1024)),

		HistoryLimit: getEnvInt("HISTORY_LIMIT", 50),

		RemoteValidatorURL: getEnv("VALIDATOR_API_URL", ""),
		RemoteTimeoutMs:    getEnvInt("VALIDATOR_TIMEOUT_MS", 30000),
		RemoteRateLimitRPS: getEnvInt("VALIDATOR_RATE_LIMIT_RPS", 5),

		Rules: rules,
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(getEnv(key, ""))
	switch value {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}

func getEnvList(key string, fallback []string) []string {
	value := getEnv(key, "")
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getEnvIntList(key string, fallback []int) []int {
	value := getEnv(key, "")
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		parsed, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		out = append(out, parsed)
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
