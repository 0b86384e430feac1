package recurring

import (
	"fmt"
	"time"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/model"
)

// maxSteps 防止异常数据导致死循环（周频约两千年）
const maxSteps = 100000

// MidnightUTC 截断到 UTC 零点
func MidnightUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// addPeriod 从锚点推进 k 个周期；月末溢出时取目标月最后一天
func addPeriod(c model.Cadence, anchor time.Time, k int) time.Time {
	switch c {
	case model.CadenceWeekly:
		return anchor.AddDate(0, 0, 7*k)
	case model.CadenceMonthly:
		return addMonthsClamped(anchor, k)
	case model.CadenceQuarterly:
		return addMonthsClamped(anchor, 3*k)
	case model.CadenceYearly:
		return addMonthsClamped(anchor, 12*k)
	}
	return anchor
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

// NextRunAt 返回锚点之后第一个晚于 after 的周期点；一次性计划返回 active=false
func NextRunAt(c model.Cadence, anchor, after time.Time) (next time.Time, active bool, err error) {
	if !c.Valid() {
		return time.Time{}, false, fmt.Errorf("unknown cadence %q", c)
	}
	if c == model.CadenceDate {
		return time.Time{}, false, nil
	}

	anchor = MidnightUTC(anchor)
	for k := 1; k <= maxSteps; k++ {
		next = addPeriod(c, anchor, k)
		if next.After(after) {
			return next, true, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("cadence %s from %s never passes %s", c, anchor.Format(time.RFC3339), after.Format(time.RFC3339))
}
