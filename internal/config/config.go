package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultMaxUploadBytes = 10 << 20

type Config struct {
	// Storage
	DBPath    string `yaml:"db_path"`
	AssetsDir string `yaml:"assets_dir"`

	// Limits
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// Extraction
	OCREnabled        bool     `yaml:"ocr_enabled"`
	OCRLanguages      []string `yaml:"ocr_languages"`
	OCRDPI            float64  `yaml:"ocr_dpi"`
	OCRTempDir        string   `yaml:"ocr_temp_dir"`
	LayoutAware       bool     `yaml:"layout_aware"`
	PageFailurePolicy string   `yaml:"page_failure_policy"` // "recover" or "abort"
	ExtractAssets     bool     `yaml:"extract_assets"`

	// LLM
	LLMBaseURL          string  `yaml:"llm_base_url"`
	LLMModel            string  `yaml:"llm_model"`
	LLMAPIKey           string  `yaml:"-"`
	LLMTemperature      float64 `yaml:"llm_temperature"`
	LLMTopP             float64 `yaml:"llm_top_p"`
	LLMStructuredOutput bool    `yaml:"llm_structured_output"`

	// Zotero
	ZoteroAPIKey    string `yaml:"-"`
	ZoteroLibraryID string `yaml:"zotero_library_id"`

	// HTTP
	HTTPAddr                 string        `yaml:"http_addr"`
	MaxConcurrentExtractions int64         `yaml:"max_concurrent_extractions"`
	CORSOrigins              []string      `yaml:"cors_origins"`
	DownloadTimeout          time.Duration `yaml:"download_timeout"`
	ReadHeaderTimeout        time.Duration `yaml:"read_header_timeout"`
}

func Default() Config {
	return Config{
		MaxUploadBytes: DefaultMaxUploadBytes,

		OCREnabled:        true,
		OCRLanguages:      []string{"fra"},
		OCRDPI:            300,
		LayoutAware:       true,
		PageFailurePolicy: "recover",
		ExtractAssets:     true,

		LLMBaseURL:     "https://models.github.ai/inference",
		LLMModel:       "openai/gpt-4.1",
		LLMTemperature: 0.3,
		LLMTopP:        1.0,

		HTTPAddr:                 ":8080",
		MaxConcurrentExtractions: 2,
		CORSOrigins:              []string{"*"},
		DownloadTimeout:          30 * time.Second,
		ReadHeaderTimeout:        10 * time.Second,
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by CONFIG_FILE, and environment variables, in that order of precedence.
// Secrets are only read from the environment.
func Load() (Config, error) {
	cfg := Default()

	if path := envStr("CONFIG_FILE", ""); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}

	cfg.DBPath = envStr("COURSE_MCP_DB_PATH", cfg.DBPath)
	cfg.AssetsDir = envStr("ASSETS_DIR", cfg.AssetsDir)
	cfg.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)

	cfg.OCREnabled = envBool("OCR_ENABLED", cfg.OCREnabled)
	cfg.OCRLanguages = envList("OCR_LANGUAGES", cfg.OCRLanguages)
	cfg.OCRDPI = envFloat("OCR_DPI", cfg.OCRDPI)
	cfg.OCRTempDir = envStr("OCR_TEMP_DIR", cfg.OCRTempDir)
	cfg.LayoutAware = envBool("LAYOUT_AWARE", cfg.LayoutAware)
	cfg.PageFailurePolicy = envStr("PAGE_FAILURE_POLICY", cfg.PageFailurePolicy)
	cfg.ExtractAssets = envBool("EXTRACT_ASSETS", cfg.ExtractAssets)

	cfg.LLMBaseURL = envStr("LLM_BASE_URL", cfg.LLMBaseURL)
	cfg.LLMModel = envStr("LLM_MODEL", cfg.LLMModel)
	cfg.LLMAPIKey = envStr("LLM_API_KEY", envStr("GITHUB_TOKEN", ""))
	cfg.LLMTemperature = envFloat("LLM_TEMPERATURE", cfg.LLMTemperature)
	cfg.LLMTopP = envFloat("LLM_TOP_P", cfg.LLMTopP)
	cfg.LLMStructuredOutput = envBool("LLM_STRUCTURED_OUTPUT", cfg.LLMStructuredOutput)

	cfg.ZoteroAPIKey = envStr("ZOTERO_API_KEY", "")
	cfg.ZoteroLibraryID = envStr("ZOTERO_LIBRARY_ID", cfg.ZoteroLibraryID)

	cfg.HTTPAddr = envStr("HTTP_ADDR", cfg.HTTPAddr)
	cfg.MaxConcurrentExtractions = envInt64("MAX_CONCURRENT_EXTRACTIONS", cfg.MaxConcurrentExtractions)
	cfg.CORSOrigins = envList("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.DownloadTimeout = envDur("DOWNLOAD_TIMEOUT", cfg.DownloadTimeout)
	cfg.ReadHeaderTimeout = envDur("READ_HEADER_TIMEOUT", cfg.ReadHeaderTimeout)

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.OCRDPI <= 0 {
		return fmt.Errorf("OCR_DPI must be positive, got %v", c.OCRDPI)
	}
	switch c.PageFailurePolicy {
	case "recover", "abort":
	default:
		return fmt.Errorf("PAGE_FAILURE_POLICY must be 'recover' or 'abort', got %q", c.PageFailurePolicy)
	}
	if c.MaxConcurrentExtractions <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_EXTRACTIONS must be positive, got %d", c.MaxConcurrentExtractions)
	}
	return nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func envStr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt64(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// envFloat accepts zero, which is a meaningful temperature.
func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDur(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envList(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == '+' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
