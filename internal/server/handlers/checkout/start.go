package checkout

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/business/checkout"
)

// Start 创建订单并返回 client secret
// POST /api/v1/checkout
func (h *CheckoutHandler) Start(c *gin.Context) (int, interface{}, error) {
	var req checkout.StartInput
	if err := c.ShouldBindJSON(&req); err != nil {
		return http.StatusBadRequest, nil, err
	}

	res, err := h.service.Start(c.Request.Context(), &req)
	var verrs validator.ValidationErrors
	switch {
	case err == nil:
		return http.StatusCreated, res, nil
	case errors.As(err, &verrs), errors.Is(err, checkout.ErrNoContact):
		return http.StatusBadRequest, nil, err
	case errors.Is(err, checkout.ErrPaymentNotAuthorized):
		return http.StatusPaymentRequired, nil, err
	default:
		return http.StatusInternalServerError, nil, err
	}
}
