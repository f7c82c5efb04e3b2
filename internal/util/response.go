package util

import (
	"course_progress_backend/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Error   *AppError   `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "Unauthorized")
}

func Forbidden(c *gin.Context) {
	Error(c, http.StatusForbidden, "Forbidden")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error", zap.Error(err), zap.String("path", c.FullPath()))
	InternalServerError(c)
}

// StatusForKind maps an error kind to its HTTP status.
func StatusForKind(kind ErrorKind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindStateConflict:
		return http.StatusConflict
	case KindAvailability, KindPermission:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// RespondError writes a structured error, or a logged 500 for unexpected ones.
func RespondError(c *gin.Context, err error) {
	appErr, ok := AsAppError(err)
	if !ok {
		LogInternalError(c, err)
		return
	}
	status := StatusForKind(appErr.Kind)
	c.JSON(status, Response{
		Code:    status,
		Message: appErr.Message,
		Error:   appErr,
	})
}

// RespondErrorWithData is RespondError plus a payload, e.g. unmet eligibility reasons.
func RespondErrorWithData(c *gin.Context, err error, data interface{}) {
	appErr, ok := AsAppError(err)
	if !ok {
		LogInternalError(c, err)
		return
	}
	status := StatusForKind(appErr.Kind)
	c.JSON(status, Response{
		Code:    status,
		Message: appErr.Message,
		Error:   appErr,
		Data:    data,
	})
}
