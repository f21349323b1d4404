package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/toricodesthings/ocr-ingest-service/internal/config"
	"github.com/toricodesthings/ocr-ingest-service/internal/logging"
	"github.com/toricodesthings/ocr-ingest-service/internal/mathinfer"
)

func main() {
	cfg := config.LoadMath()

	log, err := logging.New(cfg.LogLevel, cfg.DevLog)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	// OLLAMA_HOST selects the runtime
	cli, err := api.ClientFromEnvironment()
	if err != nil {
		log.Fatal("ollama client", zap.Error(err))
	}

	ollamaCfg := mathinfer.OllamaConfig{
		ModelID:      cfg.ModelID,
		Device:       cfg.Device,
		MaxNewTokens: cfg.MaxNewTokens,
		Pull:         cfg.PullModel,
		KeepAlive:    cfg.KeepAlive,
	}
	svc := mathinfer.NewService(func(ctx context.Context) (mathinfer.Model, error) {
		ctx, cancel := context.WithTimeout(ctx, cfg.LoadTimeout)
		defer cancel()
		m, err := mathinfer.LoadOllama(ctx, cli, ollamaCfg, log.Named("model"))
		if err != nil {
			log.Error("failed to load math model", zap.String("model", cfg.ModelID), zap.Error(err))
			return nil, err
		}
		return m, nil
	}, log)

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: mathinfer.Handler(svc, mathinfer.HandlerConfig{
			APIKey:           cfg.APIKey,
			MaxJSONBodyBytes: cfg.MaxJSONBodyBytes,
			InferTimeout:     cfg.InferTimeout,
		}, log),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		ErrorLog:          zap.NewStdLog(log),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("math inference listening",
			zap.String("addr", srv.Addr),
			zap.String("model", mathinfer.ModelName(cfg.ModelID)),
			zap.String("device", cfg.Device),
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
