package infra

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	GeminiAPIKey  string
	GeminiBaseURL string
	ImageModel    string
	VideoModel    string
	PromptModel   string
	ImageTier     string

	OutputDir   string
	ImagesDir   string
	VideosDir   string
	HistoryFile string

	CORSAllowOrigins []string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int

	JobMaxProcessing time.Duration
	JobRetention     time.Duration
	SessionTTL       time.Duration

	GenerateTimeout time.Duration
	InitTimeout     time.Duration
	PollInterval    time.Duration
	PollBudget      time.Duration

	RetryAttempts int
	RetryDelay    time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	outputDir := getEnv("OUTPUT_DIR", "./output")
	dataDir := getEnv("DATA_DIR", "./data")

	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "development"),
		Port:   getEnv("PORT", "8080"),

		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		ImageModel:    getEnv("IMAGE_MODEL", "gemini-3-pro-image-preview"),
		VideoModel:    getEnv("VIDEO_MODEL", "veo-3.1-generate-preview"),
		PromptModel:   getEnv("PROMPT_MODEL", "gemini-3-pro-preview"),
		ImageTier:     getEnv("IMAGE_TIER", "pro"),

		OutputDir:   outputDir,
		ImagesDir:   getEnv("IMAGES_DIR", filepath.Join(outputDir, "images")),
		VideosDir:   getEnv("VIDEOS_DIR", filepath.Join(outputDir, "videos")),
		HistoryFile: getEnv("HISTORY_FILE", filepath.Join(dataDir, "history.json")),

		CORSAllowOrigins: splitCSV(getEnv("CORS_ALLOW_ORIGINS", "*")),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		JobMaxProcessing: time.Second * time.Duration(getEnvInt("JOB_MAX_PROCESSING_SECONDS", 900)),
		JobRetention:     time.Second * time.Duration(getEnvInt("JOB_RETENTION_SECONDS", 86400)),
		SessionTTL:       time.Second * time.Duration(getEnvInt("SESSION_TTL_SECONDS", 1800)),

		GenerateTimeout: time.Second * time.Duration(getEnvInt("GENERATE_TIMEOUT_SECONDS", 180)),
		InitTimeout:     time.Second * time.Duration(getEnvInt("INIT_TIMEOUT_SECONDS", 60)),
		PollInterval:    time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 10)),
		PollBudget:      time.Second * time.Duration(getEnvInt("POLL_BUDGET_SECONDS", 600)),

		RetryAttempts: getEnvInt("RETRY_ATTEMPTS", 3),
		RetryDelay:    time.Second * time.Duration(getEnvInt("RETRY_DELAY_SECONDS", 2)),
	}

	return cfg, nil
}

// EnsureDirectories creates the output and data directories if missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.ImagesDir, c.VideosDir, filepath.Dir(c.HistoryFile)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
