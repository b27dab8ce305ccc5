package web

import (
	"net/http"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/Laisky/laisky-drive/internal/drive"
)

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

var statusByCode = map[drive.ErrorCode]int{
	drive.ErrCodeNotFound:         http.StatusNotFound,
	drive.ErrCodeConflict:         http.StatusConflict,
	drive.ErrCodeForbidden:        http.StatusForbidden,
	drive.ErrCodeQuotaExceeded:    http.StatusRequestEntityTooLarge,
	drive.ErrCodeBlobIntegrity:    http.StatusUnprocessableEntity,
	drive.ErrCodeInvalidArgument:  http.StatusBadRequest,
	drive.ErrCodeDuplicateVersion: http.StatusConflict,
	drive.ErrCodeResourceBusy:     http.StatusServiceUnavailable,
}

// httpStatusFor maps a drive error code to its HTTP status.
func httpStatusFor(code drive.ErrorCode) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// abortWithError writes a typed drive error, or a generic 500 for anything else.
func abortWithError(ctx *gin.Context, err error) {
	logger := gmw.GetLogger(ctx)

	typed, ok := drive.AsError(err)
	if !ok {
		logger.Error("drive request failed", zap.Error(err))
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: errorBody{
			Code:    "INTERNAL",
			Message: "internal error",
		}})
		return
	}

	status := httpStatusFor(typed.Code)
	if status >= http.StatusInternalServerError {
		logger.Warn("drive request failed", zap.Error(err))
	} else {
		logger.Debug("drive request rejected", zap.Error(err))
	}
	ctx.AbortWithStatusJSON(status, errorResponse{Error: errorBody{
		Code:      string(typed.Code),
		Message:   typed.Message,
		Retryable: typed.Retryable,
	}})
}

// abortBadRequest rejects a malformed request body or query.
func abortBadRequest(ctx *gin.Context, message string) {
	ctx.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: errorBody{
		Code:    string(drive.ErrCodeInvalidArgument),
		Message: message,
	}})
}
