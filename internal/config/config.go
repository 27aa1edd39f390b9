package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process-wide configuration. It is read once at startup and
// never mutated afterwards.
type Config struct {
	Variant          string
	EntitlementTable string
	ParamPrefix      string

	LineAccessToken   string
	LineChannelSecret string
	LineBaseURL       string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	PersonaPrompt   string
	UpsellText      string
	ApologyText     string
	GoodnightImages []string
	CheerUpImages   []string

	RequestTimeout time.Duration
	Port           string
	LogLevel       slog.Level
}

// UsesParamStore reports whether secrets must be resolved from SSM.
func (c Config) UsesParamStore() bool {
	return c.ParamPrefix != ""
}

// Load reads configuration from the environment, after applying an optional
// .env file. Secrets may be left empty when PARAM_PREFIX is set; call
// Validate once they are resolved.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Variant:           strings.ToLower(getEnv("RELAY_VARIANT", "plain")),
		EntitlementTable:  getEnv("ENTITLEMENT_TABLE", "paidUsers"),
		ParamPrefix:       strings.TrimRight(strings.TrimSpace(os.Getenv("PARAM_PREFIX")), "/"),
		LineAccessToken:   os.Getenv("LINE_ACCESS_TOKEN"),
		LineChannelSecret: os.Getenv("LINE_CHANNEL_SECRET"),
		LineBaseURL:       getEnv("LINE_API_BASE_URL", "https://api.line.me"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		PersonaPrompt:     os.Getenv("PERSONA_PROMPT"),
		UpsellText:        unescapeNewlines(os.Getenv("UPSELL_TEXT")),
		ApologyText:       os.Getenv("APOLOGY_TEXT"),
		GoodnightImages:   getList("GOODNIGHT_IMAGE_URLS"),
		CheerUpImages:     getList("CHEERUP_IMAGE_URLS"),
		RequestTimeout:    time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 10)),
		Port:              getEnv("PORT", "3000"),
		LogLevel:          getLevel("LOG_LEVEL", slog.LevelInfo),
	}

	if cfg.Variant != "custom" {
		cfg.PersonaPrompt, cfg.UpsellText, cfg.ApologyText = "", "", ""
	}
	if cfg.Variant == "mood" {
		var missing []string
		if len(cfg.GoodnightImages) == 0 {
			missing = append(missing, "GOODNIGHT_IMAGE_URLS")
		}
		if len(cfg.CheerUpImages) == 0 {
			missing = append(missing, "CHEERUP_IMAGE_URLS")
		}
		if len(missing) > 0 {
			return Config{}, fmt.Errorf("missing required environment variables for mood variant: %v", missing)
		}
	}
	if !cfg.UsesParamStore() {
		if err := cfg.Validate(); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// Validate checks that every credential is present.
func (c Config) Validate() error {
	var missing []string
	if c.LineAccessToken == "" {
		missing = append(missing, "LINE_ACCESS_TOKEN")
	}
	if c.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return fallback
	}
	return i
}

func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getLevel(key string, fallback slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		return fallback
	}
	return lvl
}

// unescapeNewlines lets single-line env values carry "\n" sequences.
func unescapeNewlines(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}

// loadEnvFile applies the first .env candidate found. A missing file is not
// an error: deployed environments set variables directly.
func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates, ".env")

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
