// 文件: pkg/workerpool/pool.go
// 优先级工作池 (Priority Worker Pool)
//
// 特点:
// - container/heap 最大堆按优先级调度，高优先级任务先执行
// - Future 句柄取结果，支持超时/context 等待
// - 任务 panic 被隔离: 转成错误返回，不杀死 worker
// - Stop 排干队列: 已提交的任务保证执行完再退出
//
// 【核心设计】同优先级任务之间不保证提交顺序。
// 堆只按优先级比较，兄弟节点的相对顺序是实现细节;
// 需要严格 FIFO 的场景请用单一优先级 + 外部队列。

package workerpool

import (
	"container/heap"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

var (
	// ErrPoolStopped 池已停止，拒绝新任务
	ErrPoolStopped = errors.New("workerpool: pool is stopped")
	// ErrTaskPanicked 任务执行中 panic
	ErrTaskPanicked = errors.New("workerpool: task panicked")
)

// Task 待执行的任务
type Task func() (any, error)

// item 堆元素
type item struct {
	priority int
	task     Task
	future   *Future
}

// taskHeap 按优先级的最大堆
type taskHeap []*item

func (h taskHeap) Len() int           { return len(h) }
func (h taskHeap) Less(i, j int) bool { return h[i].priority > h[j].priority }
func (h taskHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)        { *h = append(*h, x.(*item)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Config 工作池配置
type Config struct {
	Workers int // worker 协程数
}

// DefaultConfig 默认配置: 4 个 worker
func DefaultConfig() Config {
	return Config{Workers: 4}
}

// Pool 优先级工作池
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   taskHeap
	stopped bool

	wg sync.WaitGroup

	running   atomic.Int64
	completed atomic.Uint64
	panicked  atomic.Uint64
}

// New 创建并启动工作池
func New(config Config) *Pool {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	p := &Pool{}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	log.Printf("[WorkerPool] 启动 %d 个 worker", config.Workers)
	return p
}

// Submit 提交任务
// priority 越大越先执行。池已停止时返回 ErrPoolStopped。
func (p *Pool) Submit(priority int, task Task) (*Future, error) {
	f := newFuture()
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil, ErrPoolStopped
	}
	heap.Push(&p.tasks, &item{priority: priority, task: task, future: f})
	p.mu.Unlock()
	p.cond.Signal()
	return f, nil
}

// worker 工作循环: 取最高优先级任务执行
func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.tasks) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if len(p.tasks) == 0 {
			// stopped 且队列已排干
			p.mu.Unlock()
			return
		}
		it := heap.Pop(&p.tasks).(*item)
		p.mu.Unlock()

		p.running.Add(1)
		p.runTask(it)
		p.running.Add(-1)
		p.completed.Add(1)
	}
}

// runTask 执行单个任务，panic 转为错误
func (p *Pool) runTask(it *item) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			log.Printf("[WorkerPool] 任务 panic: %v\n%s", r, debug.Stack())
			it.future.complete(nil, fmt.Errorf("%w: %v", ErrTaskPanicked, r))
		}
	}()
	val, err := it.task()
	it.future.complete(val, err)
}

// Stop 停止工作池
// 拒绝新任务，但已入队的任务全部执行完才返回。
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.cond.Broadcast()
	p.wg.Wait()
	log.Printf("[WorkerPool] 已停止 (完成 %d 个任务)", p.completed.Load())
}

// Stats 工作池统计快照
type Stats struct {
	Queued    int    // 排队中
	Running   int64  // 执行中
	Completed uint64 // 已完成 (含 panic 的)
	Panicked  uint64 // panic 次数
}

// Stats 返回统计快照
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	queued := len(p.tasks)
	p.mu.Unlock()
	return Stats{
		Queued:    queued,
		Running:   p.running.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
	}
}
