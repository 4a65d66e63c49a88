package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mindease/companion/backend/internal/model/validation"
	chatservice "github.com/mindease/companion/backend/internal/service/chat"
	"github.com/mindease/companion/backend/internal/store"
)

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// RespondErr 按错误类型选择状态码；未识别的错误不向客户端暴露细节。
func RespondErr(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
		message = http.StatusText(status)
	}
	RespondError(w, status, message)
}

// StatusFor 把服务层的哨兵错误映射为 HTTP 状态码。
func StatusFor(err error) int {
	switch {
	case errors.Is(err, validation.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, chatservice.ErrSubmissionInFlight):
		return http.StatusConflict
	case errors.Is(err, store.ErrAuthenticationRequired):
		return http.StatusUnauthorized
	case errors.Is(err, chatservice.ErrConversationNotFound),
		errors.Is(err, chatservice.ErrSessionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
