package checkout

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/business/checkout"
)

// Complete 支付确认后触发首次投递
// POST /api/v1/checkout/:id/complete
func (h *CheckoutHandler) Complete(c *gin.Context) (int, interface{}, error) {
	res, err := h.service.Complete(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		return http.StatusOK, res, nil
	case errors.Is(err, checkout.ErrOrderNotFound):
		return http.StatusNotFound, nil, err
	case errors.Is(err, checkout.ErrNotPending):
		return http.StatusConflict, nil, err
	case errors.Is(err, checkout.ErrPaymentNotAuthorized):
		return http.StatusPaymentRequired, res, err
	default:
		return http.StatusInternalServerError, nil, err
	}
}
