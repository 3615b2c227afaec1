package async

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrCancelled 任务被取消
	ErrCancelled = errors.New("任务已取消")
	// ErrAlreadyStarted 任务只能启动一次
	ErrAlreadyStarted = errors.New("任务已启动")
	// ErrPanic 工作函数发生 panic
	ErrPanic = errors.New("任务执行发生 panic")
)

// ProgressFunc 进度上报，fraction 取值 [0, 1]
type ProgressFunc func(fraction float64)

// Work 任务的工作函数，应在 ctx 取消后尽快返回
type Work[I, O any] func(ctx context.Context, input I, progress ProgressFunc) (O, error)

// Callbacks 任务回调，均在同一个 Looper 上执行。
// 顺序为 OnStart、若干 OnProgress、OnSuccess/OnError/OnCancel 之一、OnComplete。
type Callbacks[O any] struct {
	OnStart    func()
	OnProgress func(percent int)
	OnSuccess  func(result O)
	OnError    func(err error)
	OnCancel   func()
	OnComplete func()
}

// Option 任务配置
type Option func(*config)

type config struct {
	name   string
	looper *Looper
	log    *zap.Logger
}

// WithLooper 指定回调分发循环，调用方负责运行它的 Loop
func WithLooper(l *Looper) Option {
	return func(c *config) {
		c.looper = l
	}
}

// WithName 设置任务名称，用于日志
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithLogger 设置日志
func WithLogger(log *zap.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// Task 一次性的可取消后台任务
type Task[I, O any] struct {
	name      string
	input     I
	work      Work[I, O]
	looper    *Looper
	ownLooper bool
	log       *zap.Logger

	mu              sync.Mutex
	state           State
	cancelRequested bool
	runCtx          context.Context
	cancel          context.CancelFunc
	result          O
	err             error

	// postMu 保证进度与终止回调的投递顺序
	postMu      sync.Mutex
	finished    bool
	lastPercent int

	// cb 只在 Looper 上读写
	cb Callbacks[O]

	done chan struct{}
}

// New 创建任务，回调在创建时一次性传入
func New[I, O any](input I, work Work[I, O], cb Callbacks[O], opts ...Option) *Task[I, O] {
	cfg := &config{
		name: "task",
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	t := &Task[I, O]{
		name:        cfg.name,
		input:       input,
		work:        work,
		looper:      cfg.looper,
		log:         cfg.log,
		state:       StateCreated,
		lastPercent: -1,
		cb:          cb,
		done:        make(chan struct{}),
	}
	if t.looper == nil {
		t.looper = NewLooper(16)
		t.ownLooper = true
	}
	return t
}

// Start 在后台 goroutine 中执行工作函数，重复调用返回 ErrAlreadyStarted
func (t *Task[I, O]) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateCreated {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.state = StateRunning
	runCtx, cancel := context.WithCancel(ctx)
	t.runCtx = runCtx
	t.cancel = cancel
	skip := t.cancelRequested
	t.mu.Unlock()

	if t.ownLooper {
		go t.looper.Loop(context.Background())
	}
	if skip {
		cancel()
	}

	t.log.Debug("任务开始", zap.String("task", t.name))
	go t.run(runCtx, skip)
	return nil
}

// Cancel 请求取消任务。启动前调用时任务不会执行工作函数。
func (t *Task[I, O]) Cancel() {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return
	}
	t.cancelRequested = true
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// State 当前状态
func (t *Task[I, O]) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Done 在 OnComplete 执行完成后关闭
func (t *Task[I, O]) Done() <-chan struct{} {
	return t.done
}

// Wait 等待任务结束并返回结果，取消时返回 ErrCancelled
func (t *Task[I, O]) Wait(ctx context.Context) (O, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		var zero O
		return zero, ctx.Err()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

func (t *Task[I, O]) run(ctx context.Context, skip bool) {
	t.looper.Post(func() {
		if t.cb.OnStart != nil {
			t.cb.OnStart()
		}
	})

	var (
		result O
		err    error
	)
	if !skip {
		result, err = t.invoke(ctx)
	}
	t.finish(ctx, result, err)
}

func (t *Task[I, O]) invoke(ctx context.Context) (result O, err error) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("任务执行发生 panic",
				zap.String("task", t.name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return t.work(ctx, t.input, t.progress)
}

// progress 把进度转换为百分比，只投递递增的值
func (t *Task[I, O]) progress(fraction float64) {
	if math.IsNaN(fraction) {
		return
	}
	fraction = math.Max(0, math.Min(1, fraction))
	percent := int(math.Round(fraction * 100))

	// 取消可能来自 Cancel，也可能来自 Start 传入的父 ctx
	t.mu.Lock()
	cancelled := t.cancelRequested || (t.runCtx != nil && t.runCtx.Err() != nil)
	t.mu.Unlock()
	if cancelled {
		return
	}

	t.postMu.Lock()
	defer t.postMu.Unlock()

	if t.finished || percent <= t.lastPercent {
		return
	}
	t.lastPercent = percent
	t.looper.Post(func() {
		if t.cb.OnProgress != nil {
			t.cb.OnProgress(percent)
		}
	})
}

func (t *Task[I, O]) finish(ctx context.Context, result O, err error) {
	state := StateSucceeded
	switch {
	case ctx.Err() != nil:
		state = StateCancelled
		err = ErrCancelled
		var zero O
		result = zero
	case err != nil:
		state = StateFailed
	}

	t.mu.Lock()
	t.state = state
	t.result = result
	t.err = err
	cancel := t.cancel
	t.mu.Unlock()
	cancel()

	t.postMu.Lock()
	t.finished = true
	t.postMu.Unlock()

	switch state {
	case StateFailed:
		t.log.Warn("任务失败", zap.String("task", t.name), zap.Error(err))
	default:
		t.log.Debug("任务结束", zap.String("task", t.name), zap.Stringer("state", state))
	}

	terminal := func() {
		cb := t.cb
		t.cb = Callbacks[O]{}

		switch state {
		case StateSucceeded:
			if cb.OnSuccess != nil {
				cb.OnSuccess(result)
			}
		case StateFailed:
			if cb.OnError != nil {
				cb.OnError(err)
			}
		case StateCancelled:
			if cb.OnCancel != nil {
				cb.OnCancel()
			}
		}
		if cb.OnComplete != nil {
			cb.OnComplete()
		}

		close(t.done)
		if t.ownLooper {
			t.looper.Quit()
		}
	}

	if !t.looper.Post(terminal) {
		t.log.Warn("回调分发循环已停止，终止回调未投递", zap.String("task", t.name))
		close(t.done)
	}
}
