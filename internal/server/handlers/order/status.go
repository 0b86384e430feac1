package order

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/model"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rporder"
	redisinfra "github.com/Ajmal023/Afghan-Topup-sub000/pkg/infra/redis"
)

// Status 查询订单状态，wait=N 时最多等待 N 秒直到出现终态
// GET /api/v1/orders/:id/status?wait=10
func (h *OrderHandler) Status(c *gin.Context) (int, interface{}, error) {
	ctx := c.Request.Context()
	orderID := c.Param("id")

	wait := time.Duration(0)
	if waitStr := c.Query("wait"); waitStr != "" {
		w, err := strconv.Atoi(waitStr)
		if err != nil || w < 0 {
			return http.StatusBadRequest, nil, errors.New("wait must be a non-negative number of seconds")
		}
		wait = time.Duration(w) * time.Second
	}
	if wait > h.maxWait {
		wait = h.maxWait
	}

	view, err := h.reader.Status(ctx, orderID)
	if errors.Is(err, rporder.ErrNotFound) {
		return http.StatusNotFound, nil, errors.New("order not found")
	}
	if err != nil {
		return http.StatusInternalServerError, nil, err
	}
	if view.State != model.CustomerStateProcessing || wait == 0 || h.pubsub == nil {
		return http.StatusOK, view, nil
	}

	sub, err := h.pubsub.Subscribe(ctx, model.OrderStatusChannel(orderID))
	if err != nil {
		return http.StatusOK, view, nil
	}
	defer sub.Close()

	// 订阅建立前可能已经到达终态
	if view, err = h.reader.Status(ctx, orderID); err != nil {
		return http.StatusInternalServerError, nil, err
	}
	if view.State != model.CustomerStateProcessing {
		return http.StatusOK, view, nil
	}

	if _, err := redisinfra.Wait(ctx, sub, wait); err != nil {
		return http.StatusOK, view, nil
	}
	if view, err = h.reader.Status(ctx, orderID); err != nil {
		return http.StatusInternalServerError, nil, err
	}
	return http.StatusOK, view, nil
}
