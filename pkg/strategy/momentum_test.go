package strategy

import (
	"sync"
	"testing"
	"time"

	"mdx.com/pkg/mdata"
	"mdx.com/pkg/signal"
)

// capturePublisher 收集发布的信号
type capturePublisher struct {
	mu      sync.Mutex
	signals []signal.Signal
}

func (c *capturePublisher) PublishSignal(s *signal.Signal) error {
	c.mu.Lock()
	c.signals = append(c.signals, *s)
	c.mu.Unlock()
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func tick(symbol string, mid float64) *mdata.MarketUpdate {
	return &mdata.MarketUpdate{
		Symbol:   symbol,
		Exchange: "sim",
		BidPrice: mid - 0.5,
		AskPrice: mid + 0.5,
		Volume:   1,
	}
}

func TestMomentumBuySignal(t *testing.T) {
	pub := &capturePublisher{}
	d := signal.NewDispatcher(signal.DefaultDispatcherConfig(), pub)
	d.Start()
	defer d.Stop()

	m := NewMomentum(DefaultMomentumConfig(), d)

	// 平稳段让两条 EMA 收敛到同一水平
	for i := 0; i < 50; i++ {
		m.OnUpdate(tick("BTCUSDT", 65000))
	}
	if m.Emitted() != 0 {
		t.Fatal("flat price must not produce signals")
	}

	// 快速拉升: 快线先上穿，应出现买入信号
	for i := 1; i <= 30; i++ {
		m.OnUpdate(tick("BTCUSDT", 65000+float64(i)*100))
	}
	if m.Emitted() == 0 {
		t.Fatal("expected buy signal on strong upward move")
	}

	d.Stop()
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.signals) == 0 {
		t.Fatal("no signals published")
	}
	first := pub.signals[0]
	if first.Kind != signal.KindBuy {
		t.Errorf("first signal kind = %v, want BUY", first.Kind)
	}
	if first.Symbol != "BTCUSDT" || first.Strength <= 0 || first.Strength > 1 {
		t.Errorf("unexpected signal payload: %+v", first)
	}
}

func TestMomentumSellSignal(t *testing.T) {
	pub := &capturePublisher{}
	d := signal.NewDispatcher(signal.DefaultDispatcherConfig(), pub)
	d.Start()
	defer d.Stop()

	m := NewMomentum(DefaultMomentumConfig(), d)

	for i := 0; i < 50; i++ {
		m.OnUpdate(tick("ETHUSDT", 3000))
	}
	for i := 1; i <= 30; i++ {
		m.OnUpdate(tick("ETHUSDT", 3000-float64(i)*10))
	}
	if m.Emitted() == 0 {
		t.Fatal("expected sell signal on strong downward move")
	}

	d.Stop()
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.signals[0].Kind != signal.KindSell {
		t.Errorf("first signal kind = %v, want SELL", pub.signals[0].Kind)
	}
}

// TestMomentumCooldown 冷却期内的同向信号被抑制
func TestMomentumCooldown(t *testing.T) {
	cfg := DefaultMomentumConfig()
	cfg.Cooldown = time.Hour
	pub := &capturePublisher{}
	d := signal.NewDispatcher(signal.DefaultDispatcherConfig(), pub)
	d.Start()
	defer d.Stop()

	m := NewMomentum(cfg, d)
	for i := 0; i < 50; i++ {
		m.OnUpdate(tick("BTCUSDT", 65000))
	}
	for i := 1; i <= 200; i++ {
		m.OnUpdate(tick("BTCUSDT", 65000+float64(i)*100))
	}
	if got := m.Emitted(); got != 1 {
		t.Errorf("emitted = %d, want exactly 1 within cooldown window", got)
	}
}

func TestMomentumSkipsOneSided(t *testing.T) {
	pub := &capturePublisher{}
	d := signal.NewDispatcher(signal.DefaultDispatcherConfig(), pub)
	m := NewMomentum(DefaultMomentumConfig(), d)

	m.OnUpdate(&mdata.MarketUpdate{Symbol: "X", BidPrice: 100, AskPrice: 0})
	m.OnUpdate(&mdata.MarketUpdate{Symbol: "X", BidPrice: 0, AskPrice: 101})
	if m.Emitted() != 0 {
		t.Error("one-sided quotes must be ignored")
	}
}
