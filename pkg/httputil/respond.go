package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hanyusok/docplus-dev/pkg/logger"
)

type envelope map[string]any

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response failed", slog.Any("err", err))
	}
}

// OK: «успешный» ответ с обёрткой.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, envelope{"data": data})
}

// Error: унифицированная ошибка (code + message); request id дублируется в теле для поддержки.
func Error(ctx context.Context, w http.ResponseWriter, status int, code, msg string) {
	body := envelope{
		"code":    code,
		"message": msg,
	}
	if reqID, ok := RequestIDFromContext(ctx); ok {
		body["requestId"] = reqID
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(ctx).Error("request failed", slog.Int("status", status), slog.String("code", code), slog.String("err", msg))
	}
	JSON(w, status, envelope{"error": body})
}
