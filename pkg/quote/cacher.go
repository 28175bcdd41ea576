// 文件: pkg/quote/cacher.go
// 最优报价缓存 (Redis)
//
// 把各交易对的最优买卖价异步写入 Redis，供查询服务读取。
// 热路径只做一次非阻塞的 channel 投递:
// 缓存落后于行情没有关系，慢消费时直接丢最旧语义 (丢新报价并计数)，
// 绝不反压行情处理线程。

package quote

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"mdx.com/pkg/mdata"
	"mdx.com/pkg/mempool"
)

// Quote 一条最优报价
type Quote struct {
	Symbol    string  `json:"symbol"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Mid       float64 `json:"mid"`
	Spread    float64 `json:"spread"`
	UpdatedAt int64   `json:"updated_at"` // UnixMilli
}

// CacherConfig 缓存器配置
type CacherConfig struct {
	Buffer    int           // 投递通道缓冲
	TTL       time.Duration // 键过期时间
	KeyPrefix string        // 键前缀
}

// DefaultCacherConfig 默认配置
func DefaultCacherConfig() CacherConfig {
	return CacherConfig{
		Buffer:    1024,
		TTL:       time.Minute,
		KeyPrefix: "quote:",
	}
}

// Cacher Redis 报价缓存器
type Cacher struct {
	config CacherConfig
	client *redis.Client

	ch   chan mempool.Ref[Quote]
	pool *mempool.Allocator[Quote]

	written atomic.Uint64
	dropped atomic.Uint64
	errors  atomic.Uint64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCacher 创建缓存器
func NewCacher(addr string, config CacherConfig) *Cacher {
	if config.Buffer <= 0 {
		config.Buffer = 1024
	}
	if config.TTL <= 0 {
		config.TTL = time.Minute
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "quote:"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &Cacher{
		config: config,
		client: rdb,
		ch:     make(chan mempool.Ref[Quote], config.Buffer),
		pool:   mempool.NewAllocator[Quote](mempool.DefaultConfig()),
		stopCh: make(chan struct{}),
	}
}

// Start 启动写入协程
func (c *Cacher) Start() {
	c.wg.Add(1)
	go c.writeLoop()
	log.Printf("[QuoteCache] 缓存器已启动 (缓冲 %d, TTL %v)", c.config.Buffer, c.config.TTL)
}

// Offer 投递一笔快照的最优报价
// 非阻塞: 通道满直接丢弃并计数，不反压调用方。
func (c *Cacher) Offer(snap mdata.BookSnapshot) {
	bid, ask := 0.0, 0.0
	if len(snap.Bids) > 0 {
		bid = snap.Bids[0].Price
	}
	if len(snap.Asks) > 0 {
		ask = snap.Asks[0].Price
	}
	if bid <= 0 && ask <= 0 {
		return
	}

	ref := c.pool.Allocate(mempool.CatSnapshot)
	q := ref.Value
	q.Symbol = snap.Symbol
	q.Bid = bid
	q.Ask = ask
	if bid > 0 && ask > 0 {
		q.Mid = (bid + ask) / 2
		q.Spread = ask - bid
	} else {
		q.Mid = 0
		q.Spread = 0
	}
	q.UpdatedAt = time.Now().UnixMilli()

	select {
	case c.ch <- ref:
	default:
		c.dropped.Add(1)
		c.pool.Deallocate(mempool.CatSnapshot, ref)
	}
}

// writeLoop 消费通道写 Redis
func (c *Cacher) writeLoop() {
	defer c.wg.Done()
	for {
		select {
		case ref := <-c.ch:
			c.write(ref)
		case <-c.stopCh:
			// 停机前排干积压
			for {
				select {
				case ref := <-c.ch:
					c.write(ref)
				default:
					return
				}
			}
		}
	}
}

// write 写入单条报价
func (c *Cacher) write(ref mempool.Ref[Quote]) {
	defer c.pool.Deallocate(mempool.CatSnapshot, ref)

	data, err := json.Marshal(ref.Value)
	if err != nil {
		c.errors.Add(1)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := c.config.KeyPrefix + ref.Value.Symbol
	if err := c.client.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		c.errors.Add(1)
		log.Printf("[QuoteCache] set %s failed: %v", key, err)
		return
	}
	c.written.Add(1)
}

// Get 读取一个交易对的缓存报价
func (c *Cacher) Get(ctx context.Context, symbol string) (*Quote, error) {
	data, err := c.client.Get(ctx, c.config.KeyPrefix+symbol).Bytes()
	if err != nil {
		return nil, err
	}
	var q Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// Stop 停止缓存器并关闭连接
func (c *Cacher) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.wg.Wait()
		c.client.Close()
		log.Printf("[QuoteCache] 缓存器已停止 (写入 %d, 丢弃 %d, 失败 %d)",
			c.written.Load(), c.dropped.Load(), c.errors.Load())
	})
}

// CacherStats 统计快照
type CacherStats struct {
	Written uint64
	Dropped uint64
	Errors  uint64
}

// Stats 统计快照
func (c *Cacher) Stats() CacherStats {
	return CacherStats{
		Written: c.written.Load(),
		Dropped: c.dropped.Load(),
		Errors:  c.errors.Load(),
	}
}
