package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	PDFBackendFitz    = "fitz"
	PDFBackendPoppler = "poppler"

	OCREngineTesseract = "tesseract"
	OCREngineCLI       = "cli"
	OCREngineNone      = "none"
)

type Config struct {
	// Server
	Port string

	// Secrets
	APIKey string // empty disables the x-api-key gate

	// Limits
	MaxUploadBytes   int64
	MaxJSONBodyBytes int64

	// Concurrency
	MaxConcurrentRequests int64
	MaxOCRConcurrent      int64
	MaxPageWorkers        int // per-document OCR workers cap

	// Server timeouts
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration

	// Request timeouts
	ProcessTimeout time.Duration

	// PDF / OCR backends
	PDFBackend    string
	OCREngine     string
	RenderDPI     float64
	TesseractLang string
	TessdataDir   string

	// Poppler / tesseract binaries (exec backends)
	Pdfinfo   string
	Pdftotext string
	Pdftoppm  string
	Tesseract string

	// Enrichment
	AIVerifyURL        string
	AIVerifyAPIKey     string
	AIVerifyTimeout    time.Duration
	MathInferenceURL   string
	MathInferenceKey   string
	MathCleanupTimeout time.Duration
	MathPromptHint     string

	// rate limiting (per IP)
	RateLimitEvery time.Duration
	RateLimitBurst int

	// housekeeping
	CleanupInterval time.Duration

	// health
	HealthDegradeRatio float64

	// http
	MaxHeaderBytes int

	// logging
	LogLevel string
	DevLog   bool
}

// Load reads an optional .env file and then the process environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port: envStr("PORT", "8000"),

		APIKey: firstNonEmpty(envStr("OCR_SERVICE_API_KEY", ""), envStr("BACKEND_API_KEY", "")),

		MaxUploadBytes:   envInt64("MAX_UPLOAD_BYTES", 10<<20),
		MaxJSONBodyBytes: envInt64("MAX_JSON_BODY_BYTES", 21<<20), // hex doubles the payload

		MaxConcurrentRequests: envInt64("MAX_CONCURRENT_REQUESTS", 15),
		MaxOCRConcurrent:      envInt64("MAX_OCR_CONCURRENT", 3),
		MaxPageWorkers:        envInt("MAX_PAGE_WORKERS", 4),

		ReadHeaderTimeout: envDur("READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:       envDur("READ_TIMEOUT", 60*time.Second),
		WriteTimeout:      envDur("WRITE_TIMEOUT", 180*time.Second),
		IdleTimeout:       envDur("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   envDur("SHUTDOWN_TIMEOUT", 20*time.Second),

		ProcessTimeout: envDur("PROCESS_TIMEOUT", 160*time.Second),

		PDFBackend:    strings.ToLower(envStr("PDF_BACKEND", PDFBackendFitz)),
		OCREngine:     strings.ToLower(envStr("OCR_ENGINE", OCREngineTesseract)),
		RenderDPI:     envFloat("RENDER_DPI", 200),
		TesseractLang: envStr("TESSERACT_LANG", "eng"),
		TessdataDir:   envStr("TESSDATA_PREFIX", ""),

		Pdfinfo:   envStr("PDFINFO_BIN", "pdfinfo"),
		Pdftotext: envStr("PDFTOTEXT_BIN", "pdftotext"),
		Pdftoppm:  envStr("PDFTOPPM_BIN", "pdftoppm"),
		Tesseract: envStr("TESSERACT_BIN", "tesseract"),

		AIVerifyURL:        envStr("AI_VERIFY_URL", ""),
		AIVerifyAPIKey:     envStr("AI_VERIFY_API_KEY", ""),
		AIVerifyTimeout:    envDur("AI_VERIFY_TIMEOUT", 10*time.Second),
		MathInferenceURL:   envStr("MATH_INFERENCE_URL", ""),
		MathInferenceKey:   envStr("MATH_INFERENCE_API_KEY", ""),
		MathCleanupTimeout: envDur("MATH_CLEANUP_TIMEOUT", 20*time.Second),
		MathPromptHint:     envStr("MATH_PROMPT_HINT", "calculus_ocr"),

		RateLimitEvery: envDur("RATE_LIMIT_EVERY", 600*time.Millisecond),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 20),

		CleanupInterval: envDur("CLEANUP_INTERVAL", 5*time.Minute),

		HealthDegradeRatio: envFloat("HEALTH_DEGRADE_RATIO", 0.9),

		MaxHeaderBytes: envInt("MAX_HEADER_BYTES", 1<<20),

		LogLevel: envStr("LOG_LEVEL", "info"),
		DevLog:   envBool("LOG_DEV", false),
	}
}

func (c Config) Validate() error {
	switch c.PDFBackend {
	case PDFBackendFitz, PDFBackendPoppler:
	default:
		return fmt.Errorf("PDF_BACKEND must be %q or %q, got %q", PDFBackendFitz, PDFBackendPoppler, c.PDFBackend)
	}
	switch c.OCREngine {
	case OCREngineTesseract, OCREngineCLI, OCREngineNone:
	default:
		return fmt.Errorf("OCR_ENGINE must be one of tesseract|cli|none, got %q", c.OCREngine)
	}
	if c.RenderDPI < 36 || c.RenderDPI > 1200 {
		return fmt.Errorf("RENDER_DPI out of range: %v", c.RenderDPI)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

// ---------- math inference service ----------

type MathConfig struct {
	Port   string
	APIKey string

	ModelID      string
	Device       string
	MaxNewTokens int
	PullModel    bool
	KeepAlive    time.Duration
	LoadTimeout  time.Duration

	MaxJSONBodyBytes int64
	InferTimeout     time.Duration

	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	ShutdownTimeout   time.Duration

	LogLevel string
	DevLog   bool
}

func LoadMath() MathConfig {
	_ = godotenv.Load()

	return MathConfig{
		Port:   envStr("PORT", "8001"),
		APIKey: firstNonEmpty(envStr("MATH_SERVICE_API_KEY", ""), envStr("BACKEND_API_KEY", "")),

		ModelID:      envStr("MATH_MODEL_ID", "deepseek-ai/deepseek-math-7b-instruct"),
		Device:       strings.ToLower(envStr("MATH_MODEL_DEVICE", "cuda")),
		MaxNewTokens: envInt("MATH_MODEL_MAX_NEW_TOKENS", 512),
		PullModel:    envBool("MATH_MODEL_PULL", true),
		KeepAlive:    envDur("MATH_MODEL_KEEP_ALIVE", 60*time.Minute),
		LoadTimeout:  envDur("MATH_MODEL_LOAD_TIMEOUT", 15*time.Minute),

		MaxJSONBodyBytes: envInt64("MAX_JSON_BODY_BYTES", 1<<20),
		InferTimeout:     envDur("MATH_INFER_TIMEOUT", 120*time.Second),

		ReadHeaderTimeout: envDur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      envDur("WRITE_TIMEOUT", 20*time.Minute),
		ShutdownTimeout:   envDur("SHUTDOWN_TIMEOUT", 20*time.Second),

		LogLevel: envStr("LOG_LEVEL", "info"),
		DevLog:   envBool("LOG_DEV", false),
	}
}

func envStr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
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

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
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

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
