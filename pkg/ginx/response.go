package ginx

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Response 统一响应结构
type Response struct {
	Meta Meta        `json:"meta"`
	Data interface{} `json:"data,omitempty"`
}

// Meta 元数据
type Meta struct {
	Code    int           `json:"code" example:"200"`
	Message string        `json:"message" example:"OK"`
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail 错误详情
type ErrorDetail struct {
	Path string `json:"path" example:"destination"`
	Info string `json:"info" example:"destination is required"`
}

// HandlerFunc 返回 (HTTP 状态码, 数据, 错误) 的处理函数，由 Wrap 或幂等装饰器负责写响应
type HandlerFunc func(c *gin.Context) (int, interface{}, error)

// Build 将处理结果转换为响应体
func Build(status int, data interface{}, err error) Response {
	if err == nil {
		return Response{Meta: Meta{Code: status, Message: http.StatusText(status)}, Data: data}
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return Response{Meta: Meta{Code: status, Message: "Validation failed", Details: validationDetails(verrs)}}
	}
	return Response{Meta: Meta{Code: status, Message: err.Error()}}
}

// Wrap 适配为 gin.HandlerFunc
func Wrap(h HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, data, err := h(c)
		c.JSON(status, Build(status, data, err))
	}
}

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Build(http.StatusOK, data, nil))
}

// Error 错误响应
func Error(c *gin.Context, httpCode int, message string) {
	c.JSON(httpCode, Response{
		Meta: Meta{
			Code:    httpCode,
			Message: message,
		},
	})
}

// InternalError 500 错误
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message)
}

func validationDetails(verrs validator.ValidationErrors) []ErrorDetail {
	details := make([]ErrorDetail, 0, len(verrs))
	for _, fieldErr := range verrs {
		details = append(details, ErrorDetail{
			Path: fieldErr.Field(),
			Info: getValidationErrorMessage(fieldErr),
		})
	}
	return details
}

// getValidationErrorMessage 根据验证错误类型返回友好的错误消息
func getValidationErrorMessage(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return fieldErr.Field() + " is required"
	case "email":
		return fieldErr.Field() + " must be a valid email address"
	case "e164":
		return fieldErr.Field() + " must be an E.164 phone number"
	case "len":
		return fieldErr.Field() + " must be " + fieldErr.Param() + " characters"
	case "gt":
		return fieldErr.Field() + " must be greater than " + fieldErr.Param()
	default:
		return fieldErr.Field() + " is invalid"
	}
}
