// 文件: tests/engine_benchmark_test.go
// 核心组件基准测试
//
// 关注点:
// 1. ns/op (越低越好)
// 2. allocs/op (池化路径必须接近 0)

package tests

import (
	"testing"

	"mdx.com/pkg/lfqueue"
	"mdx.com/pkg/mdata"
	"mdx.com/pkg/mempool"
)

// BenchmarkAllocate 分配器热路径: 稳态下取/还全走空闲链表
func BenchmarkAllocate(b *testing.B) {
	a := mempool.NewAllocator[mdata.MarketUpdate](mempool.DefaultConfig())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ref := a.Allocate(mempool.CatUpdate)
		a.Deallocate(mempool.CatUpdate, ref)
	}
}

// BenchmarkQueueEnqueueDequeue 单线程入队出队往返
func BenchmarkQueueEnqueueDequeue(b *testing.B) {
	q := lfqueue.New[int64](lfqueue.DefaultConfig())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Enqueue(int64(i))
		q.Dequeue()
	}
}

// BenchmarkQueueMPMC 多生产者多消费者吞吐
func BenchmarkQueueMPMC(b *testing.B) {
	q := lfqueue.New[int64](lfqueue.DefaultConfig())

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			q.Enqueue(1)
			q.Dequeue()
		}
	})
}

// BenchmarkProcessUpdate 行情处理: 读锁探测 + 写锁改簿 + 回调
func BenchmarkProcessUpdate(b *testing.B) {
	h := mdata.NewMarketDataHandler(mdata.DefaultHandlerConfig())
	h.Subscribe("BTCUSDT", nil)

	u := &mdata.MarketUpdate{
		Symbol:   "BTCUSDT",
		Exchange: "bench",
		BidPrice: 65000,
		AskPrice: 65001,
		Volume:   1,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// 价格小幅游走，覆盖原地更新和插入两条路径
		u.BidPrice = 65000 + float64(i%10)
		u.AskPrice = u.BidPrice + 1
		h.ProcessUpdate(u)
	}
}

// BenchmarkProcessUpdateParallel 多路并发写同一处理器
func BenchmarkProcessUpdateParallel(b *testing.B) {
	h := mdata.NewMarketDataHandler(mdata.DefaultHandlerConfig())
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT"}
	for _, s := range symbols {
		h.Subscribe(s, nil)
	}

	b.RunParallel(func(pb *testing.PB) {
		u := &mdata.MarketUpdate{Exchange: "bench", Volume: 1}
		i := 0
		for pb.Next() {
			u.Symbol = symbols[i%len(symbols)]
			u.BidPrice = 65000 + float64(i%10)
			u.AskPrice = u.BidPrice + 1
			h.ProcessUpdate(u)
			i++
		}
	})
}

// BenchmarkSnapshot 快照读路径
func BenchmarkSnapshot(b *testing.B) {
	h := mdata.NewMarketDataHandler(mdata.DefaultHandlerConfig())
	h.Subscribe("BTCUSDT", nil)
	for i := 0; i < 20; i++ {
		h.ProcessUpdate(&mdata.MarketUpdate{
			Symbol: "BTCUSDT", BidPrice: 65000 + float64(i), AskPrice: 65001 + float64(i), Volume: 1,
		})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.GetOrderBook("BTCUSDT")
	}
}
