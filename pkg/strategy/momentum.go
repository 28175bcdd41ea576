// 文件: pkg/strategy/momentum.go
// 动量策略 (双 EMA 交叉)
//
// 以订阅回调的形式挂在行情处理器上:
// 每笔更新推进快慢两条 EMA，快线显著上穿慢线发买入信号，
// 下穿发卖出信号。同方向信号有冷却期，避免震荡行情刷屏。

package strategy

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"mdx.com/pkg/mdata"
	"mdx.com/pkg/signal"
)

// MomentumConfig 动量策略配置
type MomentumConfig struct {
	ShortAlpha float64       // 快线 EMA 系数
	LongAlpha  float64       // 慢线 EMA 系数
	Threshold  float64       // 触发阈值: 快慢线相对偏离比例
	Cooldown   time.Duration // 同交易对同方向的最小信号间隔
	Exchange   string        // 信号上标注的来源
}

// DefaultMomentumConfig 默认配置
func DefaultMomentumConfig() MomentumConfig {
	return MomentumConfig{
		ShortAlpha: 0.3,
		LongAlpha:  0.05,
		Threshold:  0.002, // 0.2%
		Cooldown:   time.Second,
	}
}

// symState 单交易对的策略状态
type symState struct {
	shortEMA float64
	longEMA  float64
	seeded   bool
	lastKind signal.Kind
	lastAt   time.Time
}

// Momentum 动量策略
type Momentum struct {
	config     MomentumConfig
	dispatcher *signal.Dispatcher

	mu     sync.Mutex
	states map[string]*symState

	emitted atomic.Uint64
}

// NewMomentum 创建策略
func NewMomentum(config MomentumConfig, dispatcher *signal.Dispatcher) *Momentum {
	if config.ShortAlpha <= 0 {
		config.ShortAlpha = 0.3
	}
	if config.LongAlpha <= 0 {
		config.LongAlpha = 0.05
	}
	if config.Threshold <= 0 {
		config.Threshold = 0.002
	}
	return &Momentum{
		config:     config,
		dispatcher: dispatcher,
		states:     make(map[string]*symState),
	}
}

// OnUpdate 行情回调入口，可直接作为 mdata.UpdateCallback 订阅
func (m *Momentum) OnUpdate(u *mdata.MarketUpdate) {
	// 单边报价不参与中间价计算
	if u.BidPrice <= 0 || u.AskPrice <= 0 {
		return
	}
	mid := (u.BidPrice + u.AskPrice) / 2

	m.mu.Lock()
	st := m.states[u.Symbol]
	if st == nil {
		st = &symState{}
		m.states[u.Symbol] = st
	}
	if !st.seeded {
		st.shortEMA = mid
		st.longEMA = mid
		st.seeded = true
		m.mu.Unlock()
		return
	}
	st.shortEMA += m.config.ShortAlpha * (mid - st.shortEMA)
	st.longEMA += m.config.LongAlpha * (mid - st.longEMA)

	kind, strength := m.evaluate(st)
	if kind == 0 {
		m.mu.Unlock()
		return
	}
	// 冷却期内的同向信号丢弃
	now := time.Now()
	if kind == st.lastKind && now.Sub(st.lastAt) < m.config.Cooldown {
		m.mu.Unlock()
		return
	}
	st.lastKind = kind
	st.lastAt = now
	m.mu.Unlock()

	ref := m.dispatcher.NewSignal()
	ref.Value.Symbol = u.Symbol
	ref.Value.Exchange = m.config.Exchange
	ref.Value.Kind = kind
	ref.Value.Price = mid
	ref.Value.Strength = strength
	if m.dispatcher.Emit(ref) {
		m.emitted.Add(1)
	}
}

// evaluate 判定当前快慢线关系是否构成信号
func (m *Momentum) evaluate(st *symState) (signal.Kind, float64) {
	if st.longEMA == 0 {
		return 0, 0
	}
	gap := (st.shortEMA - st.longEMA) / st.longEMA
	if math.Abs(gap) < m.config.Threshold {
		return 0, 0
	}
	// 强度: 偏离超出阈值的程度，封顶 1.0
	strength := math.Min(math.Abs(gap)/(m.config.Threshold*4), 1.0)
	if gap > 0 {
		return signal.KindBuy, strength
	}
	return signal.KindSell, strength
}

// Emitted 已发出的信号数
func (m *Momentum) Emitted() uint64 { return m.emitted.Load() }
