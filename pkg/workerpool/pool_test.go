package workerpool

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitAndWait(t *testing.T) {
	p := New(DefaultConfig())
	defer p.Stop()

	f, err := p.Submit(0, func() (any, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	v, err := f.Wait()
	if err != nil || v != 42 {
		t.Fatalf("Wait = (%v, %v), want (42, nil)", v, err)
	}
}

func TestTaskError(t *testing.T) {
	p := New(DefaultConfig())
	defer p.Stop()

	wantErr := errors.New("boom")
	f, _ := p.Submit(0, func() (any, error) {
		return nil, wantErr
	})
	if _, err := f.Wait(); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

// TestPriorityOrdering 单 worker + 闸门任务压住队列，
// 后续任务必须按优先级从高到低执行。
func TestPriorityOrdering(t *testing.T) {
	p := New(Config{Workers: 1})
	defer p.Stop()

	gate := make(chan struct{})
	p.Submit(100, func() (any, error) {
		<-gate
		return nil, nil
	})

	var mu sync.Mutex
	var order []int
	record := func(prio int) Task {
		return func() (any, error) {
			mu.Lock()
			order = append(order, prio)
			mu.Unlock()
			return nil, nil
		}
	}

	var futures []*Future
	for _, prio := range []int{1, 5, 3} {
		f, err := p.Submit(prio, record(prio))
		if err != nil {
			t.Fatal(err)
		}
		futures = append(futures, f)
	}

	close(gate)
	for _, f := range futures {
		if _, err := f.WaitTimeout(2 * time.Second); err != nil {
			t.Fatal(err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []int{5, 3, 1}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("execution order = %v, want %v", order, want)
		}
	}
}

// TestPanicIsolation 任务 panic 转成错误，worker 继续存活
func TestPanicIsolation(t *testing.T) {
	p := New(Config{Workers: 1})
	defer p.Stop()

	f, _ := p.Submit(0, func() (any, error) {
		panic("kaboom")
	})
	if _, err := f.Wait(); !errors.Is(err, ErrTaskPanicked) {
		t.Fatalf("err = %v, want ErrTaskPanicked", err)
	}

	// 同一个 worker 还能继续干活
	f2, _ := p.Submit(0, func() (any, error) { return "ok", nil })
	v, err := f2.WaitTimeout(2 * time.Second)
	if err != nil || v != "ok" {
		t.Fatalf("post-panic task = (%v, %v), want (ok, nil)", v, err)
	}
	if got := p.Stats().Panicked; got != 1 {
		t.Errorf("panicked = %d, want 1", got)
	}
}

// TestStopDrains 停止时已入队任务全部执行完
func TestStopDrains(t *testing.T) {
	p := New(Config{Workers: 2})

	var done atomic.Int64
	const n = 200
	for i := 0; i < n; i++ {
		if _, err := p.Submit(i%5, func() (any, error) {
			done.Add(1)
			return nil, nil
		}); err != nil {
			t.Fatal(err)
		}
	}

	p.Stop()
	if done.Load() != n {
		t.Fatalf("completed %d tasks before exit, want %d", done.Load(), n)
	}

	// 停止后拒收
	if _, err := p.Submit(0, func() (any, error) { return nil, nil }); err != ErrPoolStopped {
		t.Fatalf("submit after stop: %v, want ErrPoolStopped", err)
	}
	// 重复 Stop 幂等
	p.Stop()
}

func TestWaitTimeout(t *testing.T) {
	p := New(Config{Workers: 1})
	defer p.Stop()

	gate := make(chan struct{})
	defer close(gate)
	f, _ := p.Submit(0, func() (any, error) {
		<-gate
		return nil, nil
	})

	if _, err := f.WaitTimeout(5 * time.Millisecond); err != ErrWaitTimeout {
		t.Fatalf("err = %v, want ErrWaitTimeout", err)
	}
}

func TestStats(t *testing.T) {
	p := New(Config{Workers: 1})
	defer p.Stop()

	gate := make(chan struct{})
	running, _ := p.Submit(10, func() (any, error) {
		<-gate
		return nil, nil
	})
	queued, _ := p.Submit(1, func() (any, error) { return nil, nil })

	// 等 worker 真正拿起第一个任务
	for p.Stats().Running == 0 {
		time.Sleep(time.Millisecond)
	}
	s := p.Stats()
	if s.Running != 1 || s.Queued != 1 {
		t.Errorf("stats = %+v, want 1 running and 1 queued", s)
	}

	close(gate)
	running.Wait()
	queued.Wait()
	if got := p.Stats().Completed; got != 2 {
		t.Errorf("completed = %d, want 2", got)
	}
}
