// 文件: pkg/workerpool/future.go
// 任务结果句柄 (Future)

package workerpool

import (
	"context"
	"errors"
	"time"
)

// ErrWaitTimeout 等待结果超时
var ErrWaitTimeout = errors.New("workerpool: wait timed out")

// Future 异步任务的结果句柄
// 结果只写一次 (完成时)，之后任意次读取都安全。
type Future struct {
	done chan struct{}
	val  any
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// complete 写入结果并唤醒所有等待者，只能调用一次
func (f *Future) complete(val any, err error) {
	f.val = val
	f.err = err
	close(f.done)
}

// Done 完成信号通道，可用于 select
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait 阻塞直到任务完成
func (f *Future) Wait() (any, error) {
	<-f.done
	return f.val, f.err
}

// WaitTimeout 限时等待，超时返回 ErrWaitTimeout
func (f *Future) WaitTimeout(d time.Duration) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-time.After(d):
		return nil, ErrWaitTimeout
	}
}

// WaitContext 可取消的等待
func (f *Future) WaitContext(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
