// 文件: tests/pipeline_test.go
// 全链路集成测试: 模拟器 -> 行情处理器 -> 动量策略 -> 信号分发

package tests

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdx.com/pkg/feed"
	"mdx.com/pkg/mdata"
	"mdx.com/pkg/signal"
	"mdx.com/pkg/strategy"
)

// memPublisher 进程内发布器
type memPublisher struct {
	mu      sync.Mutex
	signals []signal.Signal
}

func (m *memPublisher) PublishSignal(s *signal.Signal) error {
	m.mu.Lock()
	m.signals = append(m.signals, *s)
	m.mu.Unlock()
	return nil
}

func (m *memPublisher) Close() error { return nil }

func (m *memPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.signals)
}

// TestFullPipeline 模拟行情驱动整条管线，验证:
// - 订单簿持续更新且结构有序
// - 高波动行情下策略产出信号并经分发器发布
// - 全程对象池回收，稳态零堆分配路径不降级
func TestFullPipeline(t *testing.T) {
	symbols := []string{"BTCUSDT", "ETHUSDT"}

	simu := feed.NewSimulator(feed.SimulatorConfig{
		Symbols:    symbols,
		Exchange:   "sim",
		StartPrice: 65000,
		Drift:      0.05,
		Volatility: 5.0, // 高波动保证出信号
		SpreadBps:  2,
		Interval:   100 * time.Microsecond,
		Seed:       42,
	})

	handlerCfg := mdata.DefaultHandlerConfig()
	handlerCfg.Release = simu.Pool().Put
	handler := mdata.NewMarketDataHandler(handlerCfg)

	ch, err := handler.AddExchange("sim")
	require.NoError(t, err)

	pub := &memPublisher{}
	dispatcher := signal.NewDispatcher(signal.DefaultDispatcherConfig(), pub)
	dispatcher.Start()

	momentum := strategy.NewMomentum(strategy.MomentumConfig{
		ShortAlpha: 0.3,
		LongAlpha:  0.05,
		Threshold:  0.0005,
		Cooldown:   10 * time.Millisecond,
		Exchange:   "sim",
	}, dispatcher)

	for _, sym := range symbols {
		require.NoError(t, handler.Subscribe(sym, momentum.OnUpdate))
	}
	require.NoError(t, handler.Start())

	ctx, cancel := context.WithCancel(context.Background())
	simDone := make(chan struct{})
	go func() {
		defer close(simDone)
		simu.Run(ctx, func(u *mdata.MarketUpdate) { ch <- u })
	}()

	// 跑到每个交易对都积累了足够的更新
	require.Eventually(t, func() bool {
		return handler.GetMetrics().Processed >= 2000
	}, 10*time.Second, 10*time.Millisecond, "pipeline did not process enough updates")

	cancel()
	<-simDone
	require.NoError(t, handler.Stop())
	dispatcher.Stop()

	// ===== 订单簿 =====
	for _, sym := range symbols {
		snap, ok := handler.GetOrderBook(sym)
		require.True(t, ok, "book %s missing", sym)
		require.NotEmpty(t, snap.Bids)
		require.NotEmpty(t, snap.Asks)
		assert.Less(t, snap.Bids[0].Price, snap.Asks[0].Price, "%s crossed book", sym)
		for i := 1; i < len(snap.Bids); i++ {
			assert.Greater(t, snap.Bids[i-1].Price, snap.Bids[i].Price)
		}
		for i := 1; i < len(snap.Asks); i++ {
			assert.Less(t, snap.Asks[i-1].Price, snap.Asks[i].Price)
		}
	}

	// ===== 指标 =====
	m := handler.GetMetrics()
	assert.Zero(t, m.Dropped, "all symbols subscribed, nothing should drop")
	assert.Greater(t, m.ThroughputMsgS, 0.0)
	assert.Len(t, m.Exchanges, 1)

	// ===== 信号链路 =====
	assert.Greater(t, momentum.Emitted(), uint64(0), "high volatility must emit signals")
	ds := dispatcher.Stats()
	assert.EqualValues(t, ds.Published, pub.count())
	assert.Zero(t, ds.Errors)

	// GBM 不会产生非正价格
	pub.mu.Lock()
	for _, s := range pub.signals {
		assert.Greater(t, s.Price, 0.0)
		assert.NotZero(t, s.ID)
	}
	pub.mu.Unlock()

	// ===== 对象池回收 =====
	ups := simu.Pool().Stats()
	assert.Zero(t, ups.ActiveAllocs, "all market updates must return to the pool")
	assert.Zero(t, ups.Failures, "update pool must not fall back to direct allocation")

	sps := dispatcher.PoolStats()
	assert.Zero(t, sps.ActiveAllocs, "all signals must return to the pool")
}

// TestPipelineBackpressure 慢消费者不阻塞行情: 分发队列打满后信号被拒而不是卡死
func TestPipelineBackpressure(t *testing.T) {
	cfg := signal.DefaultDispatcherConfig()
	cfg.QueueCapacity = 8
	pub := &memPublisher{}
	d := signal.NewDispatcher(cfg, pub)
	// 不启动分发协程，模拟完全卡死的下游

	start := time.Now()
	for i := 0; i < 1000; i++ {
		ref := d.NewSignal()
		ref.Value.Symbol = "BTCUSDT"
		d.Emit(ref)
	}
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second, "emit must never block on a stuck consumer")
	s := d.Stats()
	assert.EqualValues(t, 8, s.Emitted)
	assert.EqualValues(t, 992, s.Rejected)
}
