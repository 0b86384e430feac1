package domains

import (
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/domains/common"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/domains/handlers/recurring"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/domains/handlers/topup"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/model"
)

// HandlerMap 路由表（ActionType → Handler 映射）
var HandlerMap = map[string]common.HandlerServProc{
	model.ActionTopupAttempt: topup.NewAttemptHandler,
	model.ActionRecurringRun: recurring.NewRunHandler,
}
