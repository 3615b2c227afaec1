package compressor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"vcompressor/app/async"
	"vcompressor/app/logger"
	"vcompressor/app/options"
	"vcompressor/app/utils"
)

// ErrEngineFailure 转码引擎执行失败
var ErrEngineFailure = errors.New("转码引擎执行失败")

// Request 转码请求
type Request struct {
	Input    string
	Output   string
	Width    int
	Height   int
	Bitrate  int
	FPS      int
	Duration time.Duration // 源时长，0 表示未知
}

// Engine 转码引擎，onProgress 的值应单调不减且在 [0, 1] 之间
type Engine interface {
	Transcode(ctx context.Context, req Request, onProgress func(fraction float64)) error
}

// Result 压缩结果
type Result struct {
	Output  string        `json:"output"`
	Elapsed time.Duration `json:"elapsed"`
	Success bool          `json:"success"`
	Size    int64         `json:"size"`
}

// ElapsedMillis 耗时毫秒数
func (r Result) ElapsedMillis() int64 {
	return r.Elapsed.Milliseconds()
}

func (r Result) String() string {
	return fmt.Sprintf("Result(%s, success=%t, %dms, %d bytes)", r.Output, r.Success, r.ElapsedMillis(), r.Size)
}

// Compressor 把压缩参数交给转码引擎执行
type Compressor struct {
	engine Engine
	log    *logger.Logger
}

// New 创建压缩器
func New(engine Engine, log *logger.Logger) *Compressor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Compressor{
		engine: engine,
		log:    log,
	}
}

// Compress 创建压缩任务，调用方负责 Start
func (c *Compressor) Compress(opts *options.CompressOptions, cb async.Callbacks[Result], taskOpts ...async.Option) *async.Task[*options.CompressOptions, Result] {
	taskOpts = append([]async.Option{
		async.WithName(opts.Output()),
		async.WithLogger(c.log.Logger),
	}, taskOpts...)

	return async.New(opts, c.run, cb, taskOpts...)
}

func (c *Compressor) run(ctx context.Context, opts *options.CompressOptions, progress async.ProgressFunc) (Result, error) {
	return c.CompressSync(ctx, opts, progress)
}

// CompressSync 在当前 goroutine 中执行压缩。
// 输出文件存在且非空时 Success 为 true；引擎出错时返回包装了 ErrEngineFailure 的错误。
func (c *Compressor) CompressSync(ctx context.Context, opts *options.CompressOptions, progress async.ProgressFunc) (Result, error) {
	if opts == nil {
		return Result{}, fmt.Errorf("%w: 压缩参数为空", options.ErrInvalidParameter)
	}
	if progress == nil {
		progress = func(float64) {}
	}

	output := opts.Output()
	result := Result{Output: output}

	if err := utils.EnsureParentDir(output); err != nil {
		return result, err
	}
	if err := utils.RemoveIfExists(output); err != nil {
		return result, err
	}

	req := Request{
		Input:    opts.Source().Locator(),
		Output:   output,
		Width:    opts.Width(),
		Height:   opts.Height(),
		Bitrate:  opts.Bitrate(),
		FPS:      opts.FPS(),
		Duration: opts.Source().Duration(),
	}

	c.log.Info("开始压缩",
		zap.String("input", req.Input),
		zap.String("output", req.Output),
		zap.Int("width", req.Width),
		zap.Int("height", req.Height),
		zap.Int("bitrate", req.Bitrate),
		zap.Int("fps", req.FPS))

	start := time.Now()
	err := c.engine.Transcode(ctx, req, progress)
	result.Elapsed = time.Since(start)

	if err != nil {
		// 失败或取消后的半成品没有意义
		if rmErr := utils.RemoveIfExists(output); rmErr != nil {
			c.log.Warnf("清理未完成的输出失败: %v", rmErr)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		return result, fmt.Errorf("%w: %w", ErrEngineFailure, err)
	}

	result.Size, result.Success = utils.FileSize(output)
	if result.Size == 0 {
		result.Success = false
	}

	if result.Success {
		c.log.Info("压缩完成", zap.String("output", output), zap.Duration("elapsed", result.Elapsed), zap.Int64("size", result.Size))
	} else {
		c.log.Warn("转码结束但输出文件缺失或为空", zap.String("output", output))
	}
	return result, nil
}
