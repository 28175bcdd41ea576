// 文件: pkg/mdata/book.go
// 有界深度订单簿 (Bounded Order Book)
//
// 【核心设计】为什么用有序切片而不是树/堆？
// 深度被截断在很小的固定档位 (默认 10)。这个量级下切片的
// 顺序扫描 + copy 插入比任何树结构都快，且对缓存友好。

package mdata

import "sort"

// DefaultDepth 默认保留的价格档位数
const DefaultDepth = 10

// PriceLevel 一个价格档位
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  int64   `json:"size"`
}

// OrderBook 单个交易对的买卖盘
// 非并发安全，由持有者 (MarketDataHandler) 负责加锁。
type OrderBook struct {
	Symbol     string
	bids       []PriceLevel // 价格降序
	asks       []PriceLevel // 价格升序
	depth      int
	lastUpdate int64 // 最近一次更新的时间戳 (UnixNano)
}

// NewOrderBook 创建订单簿，depth <= 0 时使用默认档位数
func NewOrderBook(symbol string, depth int) *OrderBook {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &OrderBook{
		Symbol: symbol,
		bids:   make([]PriceLevel, 0, depth),
		asks:   make([]PriceLevel, 0, depth),
		depth:  depth,
	}
}

// Apply 应用一笔行情更新
// 买卖两侧独立处理; 价格 <= 0 的一侧跳过。
func (ob *OrderBook) Apply(u *MarketUpdate) {
	if u.BidPrice > 0 {
		ob.bids = applyLevel(ob.bids, PriceLevel{Price: u.BidPrice, Size: u.Volume}, ob.depth, true)
	}
	if u.AskPrice > 0 {
		ob.asks = applyLevel(ob.asks, PriceLevel{Price: u.AskPrice, Size: u.Volume}, ob.depth, false)
	}
	if u.Timestamp > ob.lastUpdate {
		ob.lastUpdate = u.Timestamp
	}
}

// applyLevel 把一个档位并入有序档位表
// 同价位原地更新数量；否则按序插入，溢出的尾部档位被截断。
// desc=true 表示买盘 (价格降序)，false 表示卖盘 (价格升序)。
func applyLevel(levels []PriceLevel, lv PriceLevel, depth int, desc bool) []PriceLevel {
	pos := sort.Search(len(levels), func(i int) bool {
		if desc {
			return levels[i].Price <= lv.Price
		}
		return levels[i].Price >= lv.Price
	})

	// 同价位: 原地替换数量
	if pos < len(levels) && levels[pos].Price == lv.Price {
		levels[pos].Size = lv.Size
		return levels
	}

	// 新价位超出深度范围，直接丢弃
	if pos >= depth {
		return levels
	}

	levels = append(levels, PriceLevel{})
	copy(levels[pos+1:], levels[pos:])
	levels[pos] = lv
	if len(levels) > depth {
		levels = levels[:depth]
	}
	return levels
}

// BestBid 最优买价档位
func (ob *OrderBook) BestBid() (PriceLevel, bool) {
	if len(ob.bids) == 0 {
		return PriceLevel{}, false
	}
	return ob.bids[0], true
}

// BestAsk 最优卖价档位
func (ob *OrderBook) BestAsk() (PriceLevel, bool) {
	if len(ob.asks) == 0 {
		return PriceLevel{}, false
	}
	return ob.asks[0], true
}

// Spread 买卖价差; 任一侧为空时返回 (0, false)
func (ob *OrderBook) Spread() (float64, bool) {
	bid, okB := ob.BestBid()
	ask, okA := ob.BestAsk()
	if !okB || !okA {
		return 0, false
	}
	return ask.Price - bid.Price, true
}

// Depth 配置的最大档位数
func (ob *OrderBook) Depth() int { return ob.depth }

// LastUpdate 最近一次更新的时间戳
func (ob *OrderBook) LastUpdate() int64 { return ob.lastUpdate }

// BookSnapshot 订单簿深拷贝快照
type BookSnapshot struct {
	Symbol     string       `json:"symbol"`
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
	LastUpdate int64        `json:"last_update"`
}

// Snapshot 生成与原簿完全解耦的快照
// depth > 0 时每侧最多导出 depth 档; 0 或负值导出全部保留档位。
func (ob *OrderBook) Snapshot(depth int) BookSnapshot {
	nb, na := len(ob.bids), len(ob.asks)
	if depth > 0 {
		if nb > depth {
			nb = depth
		}
		if na > depth {
			na = depth
		}
	}
	s := BookSnapshot{
		Symbol:     ob.Symbol,
		Bids:       make([]PriceLevel, nb),
		Asks:       make([]PriceLevel, na),
		LastUpdate: ob.lastUpdate,
	}
	copy(s.Bids, ob.bids[:nb])
	copy(s.Asks, ob.asks[:na])
	return s
}
