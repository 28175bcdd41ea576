package quote

import (
	"testing"

	"mdx.com/pkg/mdata"
	"mdx.com/pkg/mempool"
)

func snap(symbol string, bid, ask float64) mdata.BookSnapshot {
	s := mdata.BookSnapshot{Symbol: symbol}
	if bid > 0 {
		s.Bids = []mdata.PriceLevel{{Price: bid, Size: 1}}
	}
	if ask > 0 {
		s.Asks = []mdata.PriceLevel{{Price: ask, Size: 1}}
	}
	return s
}

// TestOfferDropsWhenFull 通道满时丢弃并回池，绝不阻塞
func TestOfferDropsWhenFull(t *testing.T) {
	cfg := DefaultCacherConfig()
	cfg.Buffer = 4
	c := NewCacher("localhost:6379", cfg)
	// 故意不 Start: 没有消费者，通道很快打满

	for i := 0; i < 10; i++ {
		c.Offer(snap("BTCUSDT", 65000, 65001))
	}

	if got := c.Stats().Dropped; got != 6 {
		t.Errorf("dropped = %d, want 6", got)
	}
	// 被丢弃的报价对象立即回池
	if got := c.pool.Stats(mempool.CatSnapshot).ActiveAllocs; got != 4 {
		t.Errorf("pool active = %d, want 4", got)
	}
}

func TestOfferSkipsEmptyBook(t *testing.T) {
	c := NewCacher("localhost:6379", DefaultCacherConfig())

	c.Offer(mdata.BookSnapshot{Symbol: "EMPTY"})
	if got := len(c.ch); got != 0 {
		t.Errorf("queued = %d, want 0 for empty book", got)
	}
}

func TestOfferComputesMidAndSpread(t *testing.T) {
	cfg := DefaultCacherConfig()
	c := NewCacher("localhost:6379", cfg)

	c.Offer(snap("AAPL", 150.0, 150.5))
	ref := <-c.ch
	defer c.pool.Deallocate(mempool.CatSnapshot, ref)

	q := ref.Value
	if q.Mid != 150.25 || q.Spread != 0.5 {
		t.Errorf("quote = %+v, want mid 150.25 spread 0.5", q)
	}

	// 单边报价: 不算中间价
	c.Offer(snap("ONESIDE", 100, 0))
	ref2 := <-c.ch
	defer c.pool.Deallocate(mempool.CatSnapshot, ref2)
	if ref2.Value.Mid != 0 || ref2.Value.Bid != 100 {
		t.Errorf("one-sided quote = %+v", ref2.Value)
	}
}
