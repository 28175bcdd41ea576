// 文件: pkg/mdata/update.go
// 行情更新与回调类型

package mdata

// MarketUpdate 一笔行情更新
// 对象通常来自 mempool 池，回调方不得在返回后继续持有该指针。
type MarketUpdate struct {
	Symbol    string  `json:"symbol"`
	Exchange  string  `json:"exchange"`
	BidPrice  float64 `json:"bid_price"` // <= 0 表示本侧无报价
	AskPrice  float64 `json:"ask_price"` // <= 0 表示本侧无报价
	Volume    int64   `json:"volume"`
	Timestamp int64   `json:"timestamp"` // UnixNano

	// Slot 对象池槽位，由 feed.UpdatePool 维护; 不参与序列化
	Slot int32 `json:"-"`
}

// UpdateCallback 订阅回调
// 在持锁区外调用；update 指针仅在回调期间有效，需要留存请拷贝值。
type UpdateCallback func(update *MarketUpdate)
