package mathinfer

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/toricodesthings/ocr-ingest-service/internal/httpx"
)

type HandlerConfig struct {
	APIKey           string
	MaxJSONBodyBytes int64
	InferTimeout     time.Duration
}

// Handler serves /health and /v1/math-verify.
func Handler(svc *Service, cfg HandlerConfig, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxJSONBodyBytes <= 0 {
		cfg.MaxJSONBodyBytes = 1 << 20
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", httpx.WithMethod(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"status":       "ok",
			"component":    "math-inference",
			"model_loaded": svc.ModelLoaded(),
		})
	}))

	mux.HandleFunc("/v1/math-verify", httpx.WithAPIKey(cfg.APIKey, httpx.WithMethod(http.MethodPost,
		func(w http.ResponseWriter, r *http.Request) {
			req, err := httpx.ParseJSON[VerifyRequest](w, r, cfg.MaxJSONBodyBytes)
			if err != nil {
				httpx.WriteError(w, r, log, err)
				return
			}

			ctx := r.Context()
			if cfg.InferTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.InferTimeout)
				defer cancel()
			}

			resp, err := svc.Verify(ctx, req)
			if err != nil {
				httpx.WriteError(w, r, log, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, resp)
		})))

	return httpx.WithLogging(log, httpx.WithRecovery(log, mux))
}
