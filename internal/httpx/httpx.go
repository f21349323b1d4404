// Package httpx holds the JSON helpers and middleware shared by both services.
package httpx

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/toricodesthings/ocr-ingest-service/internal/apperr"
	"github.com/toricodesthings/ocr-ingest-service/internal/types"
)

const HeaderAPIKey = "x-api-key"

// ---------- Responses ----------

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteErr(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, types.ErrorResponse{OK: false, Code: code, Message: message})
}

// WriteError maps err through the apperr taxonomy. Server-side faults are
// logged with their full cause; the client only sees the public message.
func WriteError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("path", SanitizeLogString(r.URL.Path)),
			zap.String("request_id", w.Header().Get("X-Request-ID")),
			zap.String("code", string(apperr.KindOf(err))),
			zap.Error(err),
		)
	} else {
		log.Info("request rejected",
			zap.String("path", SanitizeLogString(r.URL.Path)),
			zap.String("code", string(apperr.KindOf(err))),
			zap.String("reason", SanitizeError(err)),
		)
	}
	WriteErr(w, status, string(apperr.KindOf(err)), apperr.PublicMessage(err))
}

// ParseJSON decodes exactly one JSON value from a body capped at limit bytes.
func ParseJSON[T any](w http.ResponseWriter, r *http.Request, limit int64) (T, error) {
	var out T
	body := http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(body)

	if err := dec.Decode(&out); err != nil {
		return out, classifyBodyError(err)
	}

	// Ensure there's nothing else after the first JSON value
	if err := dec.Decode(new(any)); err != io.EOF {
		if err == nil {
			return out, apperr.Validationf("unexpected trailing data")
		}
		return out, classifyBodyError(err)
	}
	return out, nil
}

func classifyBodyError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return apperr.New(apperr.PayloadTooLarge, fmt.Sprintf("Request body exceeds %d bytes.", mbe.Limit), err)
	}
	return apperr.New(apperr.Validation, "Malformed JSON body: "+SanitizeError(err), err)
}

// ---------- Middleware ----------

func WithMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			WriteErr(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method must be "+method)
			return
		}
		next(w, r)
	}
}

// WithAPIKey requires a matching x-api-key header. An empty expected key
// disables the check.
func WithAPIKey(expected string, next http.HandlerFunc) http.HandlerFunc {
	if expected == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(HeaderAPIKey)
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			WriteErr(w, http.StatusUnauthorized, string(apperr.Unauthorized), "Invalid API key")
			return
		}
		next(w, r)
	}
}

func WithRecovery(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic",
					zap.Any("panic", rec),
					zap.String("path", SanitizeLogString(r.URL.Path)),
					zap.ByteString("stack", debug.Stack()),
				)
				WriteErr(w, http.StatusInternalServerError, string(apperr.Internal), "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// WithLogging tags each request with an id and logs its outcome.
func WithLogging(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		ww := &wrapWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		log.Info("http",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", SanitizeLogString(r.URL.Path)),
			zap.Int("status", ww.status),
			zap.Duration("took", time.Since(start)),
		)
	})
}

type wrapWriter struct {
	http.ResponseWriter
	status int
}

func (w *wrapWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// ---------- Helpers ----------

func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	msg = strings.ReplaceAll(msg, os.TempDir(), "[tmp]")
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return msg
}

func SanitizeLogString(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
