package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/toricodesthings/ocr-ingest-service/internal/config"
	"github.com/toricodesthings/ocr-ingest-service/internal/enrich"
	"github.com/toricodesthings/ocr-ingest-service/internal/execrun"
	"github.com/toricodesthings/ocr-ingest-service/internal/ingest"
	"github.com/toricodesthings/ocr-ingest-service/internal/logging"
	"github.com/toricodesthings/ocr-ingest-service/internal/ocr"
	"github.com/toricodesthings/ocr-ingest-service/internal/pdfdoc"
	"github.com/toricodesthings/ocr-ingest-service/internal/server"
	"github.com/toricodesthings/ocr-ingest-service/internal/types"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, cfg.DevLog)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	runner := execrun.Exec{Log: log.Named("exec")}

	var opener pdfdoc.Opener
	switch cfg.PDFBackend {
	case config.PDFBackendPoppler:
		opener = pdfdoc.NewPopplerOpener(pdfdoc.PopplerBins{
			Pdfinfo:   cfg.Pdfinfo,
			Pdftotext: cfg.Pdftotext,
			Pdftoppm:  cfg.Pdftoppm,
		}, runner)
	default:
		opener = pdfdoc.NewFitzOpener()
	}

	ocrOpts := ocr.Options{Languages: strings.Split(cfg.TesseractLang, "+"), TessdataDir: cfg.TessdataDir}
	var engine ocr.Engine
	switch cfg.OCREngine {
	case config.OCREngineTesseract:
		engine = ocr.NewTesseract(ocrOpts)
	case config.OCREngineCLI:
		engine = ocr.NewCLI(cfg.Tesseract, ocrOpts, runner)
	default:
		engine = ocr.Noop{}
	}

	enricher := enrich.New(enrich.Config{
		AI: enrich.Endpoint{
			URL:     cfg.AIVerifyURL,
			APIKey:  cfg.AIVerifyAPIKey,
			Timeout: cfg.AIVerifyTimeout,
		},
		Math: enrich.Endpoint{
			URL:     cfg.MathInferenceURL,
			APIKey:  cfg.MathInferenceKey,
			Timeout: cfg.MathCleanupTimeout,
		},
		ContextLabel: cfg.MathPromptHint,
	}, &http.Client{}, log.Named("enrich"))

	proc := ingest.New(opener, engine, enricher, ingest.Options{
		DPI:            cfg.RenderDPI,
		MaxPageWorkers: cfg.MaxPageWorkers,
		MaxOCR:         cfg.MaxOCRConcurrent,
	}, log.Named("ingest"))

	if !proc.OCRAvailable() {
		log.Warn("OCR engine unavailable, /ocr-file will be rejected and scanned pages return empty text",
			zap.String("engine", cfg.OCREngine))
	}
	if !proc.PDFAvailable() {
		log.Warn("PDF backend unavailable", zap.String("backend", cfg.PDFBackend))
	}
	if cfg.APIKey == "" {
		log.Warn("OCR_SERVICE_API_KEY not set, endpoints are open")
	}

	s := server.New(cfg, proc, log)
	srv := s.HTTPServer()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go s.Housekeeping(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info("ocr service listening",
			zap.String("addr", srv.Addr),
			zap.Int64("max_concurrent", cfg.MaxConcurrentRequests),
			zap.Int64("max_ocr", cfg.MaxOCRConcurrent),
			zap.String("pdf_backend", proc.PDFBackend()),
			zap.String("ocr_engine", proc.OCREngine()),
			zap.Bool("ai_verify", enricher.Configured(types.EnrichAI)),
			zap.Bool("math_cleanup", enricher.Configured(types.EnrichMath)),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown", zap.Error(err))
		}
	}
}
