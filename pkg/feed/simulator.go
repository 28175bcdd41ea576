// 文件: pkg/feed/simulator.go
// 行情模拟器
//
// 几何布朗运动 (GBM) 生成多个交易对的买卖报价流:
//   S(t+dt) = S(t) * exp((mu - sigma^2/2)*dt + sigma*sqrt(dt)*Z)
// 围绕中间价按 bps 张开买卖价差，成交量随机。
// 更新对象来自 UpdatePool; sink 的最终持有者负责 Put 归还。

package feed

import (
	"context"
	"log"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"mdx.com/pkg/mdata"
)

// SimulatorConfig 模拟器配置
type SimulatorConfig struct {
	Symbols    []string      // 交易对列表
	Exchange   string        // 数据源名称
	StartPrice float64       // 初始价格
	Drift      float64       // 年化漂移率 mu
	Volatility float64       // 年化波动率 sigma
	SpreadBps  float64       // 买卖价差 (基点)
	Interval   time.Duration // 每轮 tick 间隔
	Seed       int64         // 随机种子，0 = 按时间
}

// DefaultSimulatorConfig 默认配置
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		Symbols:    []string{"BTCUSDT", "ETHUSDT"},
		Exchange:   "sim",
		StartPrice: 65000,
		Drift:      0.05,
		Volatility: 0.8,
		SpreadBps:  2,
		Interval:   time.Millisecond,
	}
}

// Sink 更新的去向
// 实现方 (或它的下游) 负责把对象归还模拟器的 UpdatePool。
type Sink func(u *mdata.MarketUpdate)

// Simulator GBM 行情模拟器
type Simulator struct {
	config SimulatorConfig
	pool   *UpdatePool
	rng    *rand.Rand
	prices map[string]float64

	generated atomic.Uint64
}

// NewSimulator 创建模拟器
func NewSimulator(config SimulatorConfig) *Simulator {
	if config.StartPrice <= 0 {
		config.StartPrice = 65000
	}
	if config.Interval <= 0 {
		config.Interval = time.Millisecond
	}
	if config.SpreadBps <= 0 {
		config.SpreadBps = 2
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	prices := make(map[string]float64, len(config.Symbols))
	for i, sym := range config.Symbols {
		// 各交易对起点略微错开，避免完全同步的曲线
		prices[sym] = config.StartPrice * (1 + 0.1*float64(i))
	}
	return &Simulator{
		config: config,
		pool:   NewUpdatePool(),
		rng:    rand.New(rand.NewSource(seed)),
		prices: prices,
	}
}

// Pool 更新对象池，供下游配置归还钩子
func (s *Simulator) Pool() *UpdatePool { return s.pool }

// Generated 已生成的更新数
func (s *Simulator) Generated() uint64 { return s.generated.Load() }

// Run 阻塞运行，直到 ctx 取消
// 单协程驱动: rng 和价格表都不需要加锁。
func (s *Simulator) Run(ctx context.Context, sink Sink) {
	log.Printf("[Feed] 模拟器启动: %d 个交易对, 间隔 %v", len(s.config.Symbols), s.config.Interval)
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// 把年化参数折算到单个 tick
	dt := s.config.Interval.Seconds() / (365.25 * 24 * 3600)
	drift := (s.config.Drift - 0.5*s.config.Volatility*s.config.Volatility) * dt
	vol := s.config.Volatility * math.Sqrt(dt)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Feed] 模拟器停止 (生成 %d 笔)", s.generated.Load())
			return
		case <-ticker.C:
			for _, sym := range s.config.Symbols {
				sink(s.step(sym, drift, vol))
				s.generated.Add(1)
			}
		}
	}
}

// step 推进一个交易对的价格并生成更新
func (s *Simulator) step(symbol string, drift, vol float64) *mdata.MarketUpdate {
	price := s.prices[symbol] * math.Exp(drift+vol*s.rng.NormFloat64())
	s.prices[symbol] = price

	half := price * s.config.SpreadBps / 10000 / 2
	u := s.pool.Get()
	u.Symbol = symbol
	u.Exchange = s.config.Exchange
	u.BidPrice = price - half
	u.AskPrice = price + half
	u.Volume = 1 + s.rng.Int63n(100)
	u.Timestamp = time.Now().UnixNano()
	return u
}
