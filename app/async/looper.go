package async

import (
	"context"
	"sync"
)

// Looper 单消费者回调分发循环。
// 所有投递的函数按投递顺序在运行 Loop 的 goroutine 上依次执行。
type Looper struct {
	events   chan func()
	closed   chan struct{}
	quitOnce sync.Once

	// mu 保护 stopped 与 senders，Loop 退出前等待所有进行中的 Post
	mu      sync.Mutex
	stopped bool
	senders sync.WaitGroup
}

// NewLooper 创建分发循环，size 为事件缓冲区大小
func NewLooper(size int) *Looper {
	if size <= 0 {
		size = 16
	}
	return &Looper{
		events: make(chan func(), size),
		closed: make(chan struct{}),
	}
}

// Post 投递函数，缓冲区满时阻塞；循环已退出时返回 false。
// 返回 true 的函数一定会被执行。
func (l *Looper) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.senders.Add(1)
	l.mu.Unlock()
	defer l.senders.Done()

	select {
	case <-l.closed:
		return false
	default:
	}

	select {
	case l.events <- fn:
		return true
	case <-l.closed:
		return false
	}
}

// Loop 在当前 goroutine 上执行投递的函数，直到 Quit 或 ctx 结束。
// 退出前会执行缓冲区中已有的函数。
func (l *Looper) Loop(ctx context.Context) {
	for {
		select {
		case fn := <-l.events:
			fn()
		case <-l.closed:
			l.drain()
			return
		case <-ctx.Done():
			l.Quit()
			l.drain()
			return
		}
	}
}

// Quit 停止循环，可重复调用
func (l *Looper) Quit() {
	l.quitOnce.Do(func() {
		close(l.closed)
	})
}

// drain 拒绝新的投递，等进行中的 Post 返回后执行缓冲区剩余的函数
func (l *Looper) drain() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()

	sendersDone := make(chan struct{})
	go func() {
		l.senders.Wait()
		close(sendersDone)
	}()

	for {
		select {
		case fn := <-l.events:
			fn()
		case <-sendersDone:
			for {
				select {
				case fn := <-l.events:
					fn()
				default:
					return
				}
			}
		}
	}
}
