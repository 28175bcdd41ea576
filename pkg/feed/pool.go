// 文件: pkg/feed/pool.go
// 行情更新对象池
//
// 在 mempool 之上包一层: MarketUpdate 自己携带槽位，
// 指针可以跨通道传递，最终持有者凭 Put 归还。

package feed

import (
	"mdx.com/pkg/mdata"
	"mdx.com/pkg/mempool"
)

// UpdatePool 行情更新对象池
type UpdatePool struct {
	alloc *mempool.Allocator[mdata.MarketUpdate]
}

// NewUpdatePool 创建对象池
func NewUpdatePool() *UpdatePool {
	return &UpdatePool{
		alloc: mempool.NewAllocator[mdata.MarketUpdate](mempool.DefaultConfig()),
	}
}

// Get 取一个干净的更新对象
func (p *UpdatePool) Get() *mdata.MarketUpdate {
	ref := p.alloc.Allocate(mempool.CatUpdate)
	*ref.Value = mdata.MarketUpdate{Slot: ref.Slot}
	return ref.Value
}

// Put 归还更新对象
// 只接受本池 Get 出来的对象; 归还后指针不得再使用。
func (p *UpdatePool) Put(u *mdata.MarketUpdate) {
	p.alloc.Deallocate(mempool.CatUpdate, mempool.Ref[mdata.MarketUpdate]{
		Value: u,
		Slot:  u.Slot,
	})
}

// Stats 池统计
func (p *UpdatePool) Stats() mempool.Stats {
	return p.alloc.Stats(mempool.CatUpdate)
}
