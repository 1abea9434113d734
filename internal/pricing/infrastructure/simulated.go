// Package infrastructure 行情上下文的价格源实现
package infrastructure

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/cryptocustody/internal/pricing/domain"
	"github.com/wyfcoding/cryptocustody/pkg/errs"
)

// SimulatedOracle 模拟价格源
// 以配置的初始报价为基准做随机游走，每次读取施加一次 ±volatility/2 内的漂移。
// 稳定币 USDT 锚定为 1，不参与漂移。
type SimulatedOracle struct {
	mu         sync.Mutex
	prices     map[string]decimal.Decimal
	updatedAt  map[string]time.Time
	volatility decimal.Decimal
	rnd        *rand.Rand
}

// NewSimulatedOracle 创建模拟价格源
func NewSimulatedOracle(initial map[string]float64, volatility float64) *SimulatedOracle {
	prices := make(map[string]decimal.Decimal, len(initial))
	updatedAt := make(map[string]time.Time, len(initial))
	now := time.Now()
	for symbol, price := range initial {
		prices[symbol] = decimal.NewFromFloat(price)
		updatedAt[symbol] = now
	}
	return &SimulatedOracle{
		prices:     prices,
		updatedAt:  updatedAt,
		volatility: decimal.NewFromFloat(volatility),
		rnd:        rand.New(rand.NewSource(now.UnixNano())),
	}
}

// drift 对单个资产施加一次随机漂移，调用方必须持有锁
func (o *SimulatedOracle) drift(symbol string) {
	if symbol == "USDT" {
		return
	}
	// factor ∈ [1-volatility/2, 1+volatility/2]
	jitter := decimal.NewFromFloat(o.rnd.Float64() - 0.5).Mul(o.volatility)
	next := o.prices[symbol].Mul(decimal.NewFromInt(1).Add(jitter))
	if next.IsPositive() {
		o.prices[symbol] = next
		o.updatedAt[symbol] = time.Now()
	}
}

// CurrentPrice 获取资产当前单价
func (o *SimulatedOracle) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.prices[symbol]; !ok {
		return decimal.Zero, errs.NotFound("asset price")
	}
	o.drift(symbol)
	return o.prices[symbol], nil
}

// Snapshot 获取全部资产的报价，按符号排序
func (o *SimulatedOracle) Snapshot(ctx context.Context) ([]domain.Quote, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	quotes := make([]domain.Quote, 0, len(o.prices))
	for symbol := range o.prices {
		o.drift(symbol)
		quotes = append(quotes, domain.Quote{
			Symbol:    symbol,
			Price:     o.prices[symbol],
			UpdatedAt: o.updatedAt[symbol],
		})
	}
	sort.Slice(quotes, func(i, j int) bool {
		return quotes[i].Symbol < quotes[j].Symbol
	})
	return quotes, nil
}
