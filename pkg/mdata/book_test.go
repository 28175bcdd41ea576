package mdata

import "testing"

func update(symbol string, bid, ask float64, vol int64) *MarketUpdate {
	return &MarketUpdate{
		Symbol:   symbol,
		Exchange: "TEST",
		BidPrice: bid,
		AskPrice: ask,
		Volume:   vol,
	}
}

// =============================================================================
// 档位维护
// =============================================================================

func TestBookBestQuotes(t *testing.T) {
	ob := NewOrderBook("AAPL", 10)

	ob.Apply(update("AAPL", 150.25, 150.50, 100))
	ob.Apply(update("AAPL", 150.30, 150.45, 200))

	bid, ok := ob.BestBid()
	if !ok || bid.Price != 150.30 {
		t.Errorf("best bid = %+v, want 150.30", bid)
	}
	ask, ok := ob.BestAsk()
	if !ok || ask.Price != 150.45 {
		t.Errorf("best ask = %+v, want 150.45", ask)
	}

	// 旧档位不被覆盖，留在次档
	s := ob.Snapshot(0)
	if len(s.Bids) != 2 || s.Bids[1].Price != 150.25 {
		t.Errorf("bids = %+v, want old bid retained at level 2", s.Bids)
	}
	if len(s.Asks) != 2 || s.Asks[1].Price != 150.50 {
		t.Errorf("asks = %+v, want old ask retained at level 2", s.Asks)
	}

	spread, ok := ob.Spread()
	if !ok || spread < 0.149 || spread > 0.151 {
		t.Errorf("spread = %v, want ~0.15", spread)
	}
}

func TestBookSamePriceReplaces(t *testing.T) {
	ob := NewOrderBook("BTCUSDT", 10)

	ob.Apply(update("BTCUSDT", 65000, 65001, 100))
	ob.Apply(update("BTCUSDT", 65000, 65001, 300))

	s := ob.Snapshot(0)
	if len(s.Bids) != 1 || s.Bids[0].Size != 300 {
		t.Errorf("bids = %+v, want single level with size 300", s.Bids)
	}
	if len(s.Asks) != 1 || s.Asks[0].Size != 300 {
		t.Errorf("asks = %+v, want single level with size 300", s.Asks)
	}
}

func TestBookDepthTruncation(t *testing.T) {
	ob := NewOrderBook("ETHUSDT", 3)

	// 买价从低到高逐笔进场，最优价总在档首，最差价被挤出
	for i := 1; i <= 5; i++ {
		ob.Apply(update("ETHUSDT", float64(100+i), 0, 10))
	}

	s := ob.Snapshot(0)
	if len(s.Bids) != 3 {
		t.Fatalf("expected 3 bid levels, got %d", len(s.Bids))
	}
	want := []float64{105, 104, 103}
	for i, p := range want {
		if s.Bids[i].Price != p {
			t.Errorf("bid level %d = %v, want %v", i, s.Bids[i].Price, p)
		}
	}

	// 比最差档还差的新价位直接丢弃
	ob.Apply(update("ETHUSDT", 101, 0, 10))
	if got := len(ob.Snapshot(0).Bids); got != 3 {
		t.Errorf("expected stale price rejected, got %d levels", got)
	}
}

func TestBookOneSidedUpdate(t *testing.T) {
	ob := NewOrderBook("AAPL", 10)

	ob.Apply(update("AAPL", 150.25, 0, 100))
	if _, ok := ob.BestAsk(); ok {
		t.Error("expected no ask side")
	}
	if _, ok := ob.Spread(); ok {
		t.Error("expected no spread with one-sided book")
	}
	if bid, ok := ob.BestBid(); !ok || bid.Price != 150.25 {
		t.Errorf("best bid = %+v, want 150.25", bid)
	}
}

func TestSnapshotDepthCap(t *testing.T) {
	ob := NewOrderBook("ETHUSDT", 10)
	for i := 1; i <= 5; i++ {
		ob.Apply(update("ETHUSDT", float64(100+i), float64(200+i), 10))
	}

	// 限档导出: 每侧只取最优的 2 档
	s := ob.Snapshot(2)
	if len(s.Bids) != 2 || len(s.Asks) != 2 {
		t.Fatalf("capped snapshot has %d/%d levels, want 2/2", len(s.Bids), len(s.Asks))
	}
	if s.Bids[0].Price != 105 || s.Bids[1].Price != 104 {
		t.Errorf("capped bids = %+v, want best two", s.Bids)
	}
	if s.Asks[0].Price != 201 || s.Asks[1].Price != 202 {
		t.Errorf("capped asks = %+v, want best two", s.Asks)
	}

	// 0 或超额的 depth 均导出全部保留档位
	if got := len(ob.Snapshot(0).Bids); got != 5 {
		t.Errorf("full snapshot has %d bid levels, want 5", got)
	}
	if got := len(ob.Snapshot(100).Bids); got != 5 {
		t.Errorf("oversized depth has %d bid levels, want 5", got)
	}
}

func TestSnapshotIsDecoupled(t *testing.T) {
	ob := NewOrderBook("AAPL", 10)
	ob.Apply(update("AAPL", 150.25, 150.50, 100))

	s := ob.Snapshot(0)
	ob.Apply(update("AAPL", 151.00, 151.10, 100))

	if s.Bids[0].Price != 150.25 {
		t.Error("snapshot mutated by later updates")
	}
}
