// 文件: pkg/signal/model.go
// 策略信号模型
//
// 信号对象来自 mempool 池，在发布完成后归还;
// 落库走独立的 SignalRecord (GORM 模型)，与热路径对象解耦。

package signal

import (
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

// NATS 主题
const (
	TopicSignals = "md.signals" // 策略信号
)

// =============================================================================
// 信号类型
// =============================================================================

type Kind int8

const (
	KindBuy   Kind = iota + 1 // 买入信号
	KindSell                  // 卖出信号
	KindAlert                 // 价格异动提醒
)

func (k Kind) String() string {
	switch k {
	case KindBuy:
		return "BUY"
	case KindSell:
		return "SELL"
	case KindAlert:
		return "ALERT"
	}
	return "UNKNOWN"
}

// =============================================================================
// Signal - 热路径信号对象 (池化)
// =============================================================================

// Signal 一个策略信号
type Signal struct {
	ID        int64   `json:"id"` // 雪花ID
	Symbol    string  `json:"symbol"`
	Exchange  string  `json:"exchange"`
	Kind      Kind    `json:"kind"`
	Price     float64 `json:"price"`
	Strength  float64 `json:"strength"` // 信号强度 [0,1]
	CreatedAt int64   `json:"created_at"` // UnixNano
}

// =============================================================================
// SignalRecord - MySQL 落库模型
// =============================================================================

// SignalRecord 信号落库记录
type SignalRecord struct {
	ID        uint    `gorm:"primaryKey;autoIncrement"`
	SignalID  int64   `gorm:"column:signal_id;uniqueIndex"` // 雪花ID (幂等键)
	Symbol    string  `gorm:"column:symbol;index;size:32"`
	Exchange  string  `gorm:"column:exchange;size:32"`
	Kind      Kind    `gorm:"column:kind"`
	Price     float64 `gorm:"column:price"`
	Strength  float64 `gorm:"column:strength"`
	CreatedAt int64   `gorm:"column:created_at;index"`
}

// TableName 表名
func (SignalRecord) TableName() string {
	return "strategy_signals"
}

// RecordFromSignal 从热路径对象构建落库记录 (值拷贝，不留指针)
func RecordFromSignal(s *Signal) *SignalRecord {
	return &SignalRecord{
		SignalID:  s.ID,
		Symbol:    s.Symbol,
		Exchange:  s.Exchange,
		Kind:      s.Kind,
		Price:     s.Price,
		Strength:  s.Strength,
		CreatedAt: s.CreatedAt,
	}
}

// =============================================================================
// 雪花ID
// =============================================================================

var (
	node     *snowflake.Node
	initOnce sync.Once
)

// InitSnowflake 初始化雪花算法
// nodeID: 节点ID (0-1023)。不显式调用时首次生成ID会落到节点0。
func InitSnowflake(nodeID int64) error {
	var err error
	initOnce.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// GenerateSignalID 生成信号ID
// 初始化统一经过 Once: 裸读 node 判空会和 Do 内的写指令重排，
// 并发首调用可能拿到 nil，必须无条件走 Do 建立 happens-before。
func GenerateSignalID() int64 {
	initOnce.Do(func() {
		node, _ = snowflake.NewNode(0) // 节点0恒合法
	})
	return node.Generate().Int64()
}

// Now 当前时间戳 (UnixNano)
func Now() int64 { return time.Now().UnixNano() }
