package utils

import (
	"encoding/json"
	"net/http"

	"github.com/zhouzirui/xrp-pay/backend/internal/apperr"
	"github.com/zhouzirui/xrp-pay/backend/internal/logger"
)

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.S().Warnw("failed to encode response", "error", err)
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// RespondAppError 按错误分类选择状态码并附带 kind 字段
func RespondAppError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.S().Errorw("internal error", "error", err)
		message = "internal error"
	}
	RespondJSON(w, status, map[string]string{"error": message, "kind": apperr.Kind(err)})
}
