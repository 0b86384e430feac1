// Package fx 静态汇率换算
package fx

import (
	"fmt"
	"math"
	"strings"
)

// Converter 以美元为基准的汇率表：1 单位外币 = rate 美元
type Converter struct {
	rates map[string]float64
}

// NewConverter 汇率表的键为 ISO 币种代码
func NewConverter(rates map[string]float64) *Converter {
	c := &Converter{rates: map[string]float64{"USD": 1}}
	for cur, rate := range rates {
		c.rates[strings.ToUpper(cur)] = rate
	}
	return c
}

// Rate 返回币种兑美元汇率
func (c *Converter) Rate(currency string) (float64, error) {
	rate, ok := c.rates[strings.ToUpper(currency)]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("no usd rate for currency %q", currency)
	}
	return rate, nil
}

// ToUSD 最小单位金额换算为美分，四舍五入
func (c *Converter) ToUSD(amountMinor int64, currency string) (int64, float64, error) {
	rate, err := c.Rate(currency)
	if err != nil {
		return 0, 0, err
	}
	return int64(math.Round(float64(amountMinor) * rate)), rate, nil
}
