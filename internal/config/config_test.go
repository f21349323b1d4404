package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no stray .env
	cfg := Load()

	assert.Equal(t, "8000", cfg.Port)
	assert.EqualValues(t, 10<<20, cfg.MaxUploadBytes)
	assert.Equal(t, PDFBackendFitz, cfg.PDFBackend)
	assert.Equal(t, OCREngineTesseract, cfg.OCREngine)
	assert.Equal(t, 200.0, cfg.RenderDPI)
	assert.Equal(t, 10*time.Second, cfg.AIVerifyTimeout)
	assert.Equal(t, 20*time.Second, cfg.MathCleanupTimeout)
	assert.Equal(t, "calculus_ocr", cfg.MathPromptHint)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("BACKEND_API_KEY", "shared")
	t.Setenv("PDF_BACKEND", "Poppler")
	t.Setenv("OCR_ENGINE", "none")
	t.Setenv("RENDER_DPI", "300")
	t.Setenv("MAX_UPLOAD_BYTES", "nonsense")
	t.Setenv("MATH_CLEANUP_TIMEOUT", "5s")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "shared", cfg.APIKey)
	assert.Equal(t, PDFBackendPoppler, cfg.PDFBackend)
	assert.Equal(t, OCREngineNone, cfg.OCREngine)
	assert.Equal(t, 300.0, cfg.RenderDPI)
	assert.EqualValues(t, 10<<20, cfg.MaxUploadBytes, "invalid values fall back")
	assert.Equal(t, 5*time.Second, cfg.MathCleanupTimeout)
	require.NoError(t, cfg.Validate())
}

func TestServiceKeyWinsOverBackendKey(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BACKEND_API_KEY", "shared")
	t.Setenv("OCR_SERVICE_API_KEY", "ocr")
	t.Setenv("MATH_SERVICE_API_KEY", "math")

	assert.Equal(t, "ocr", Load().APIKey)
	assert.Equal(t, "math", LoadMath().APIKey)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	base := Load()

	bad := base
	bad.PDFBackend = "pdfium"
	assert.Error(t, bad.Validate())

	bad = base
	bad.OCREngine = "mistral"
	assert.Error(t, bad.Validate())

	bad = base
	bad.RenderDPI = 5000
	assert.Error(t, bad.Validate())
}

func TestLoadMathDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg := LoadMath()
	assert.Equal(t, "8001", cfg.Port)
	assert.Equal(t, "deepseek-ai/deepseek-math-7b-instruct", cfg.ModelID)
	assert.Equal(t, "cuda", cfg.Device)
	assert.Equal(t, 512, cfg.MaxNewTokens)
	assert.True(t, cfg.PullModel)
}
