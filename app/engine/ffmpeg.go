package engine

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"vcompressor/app/compressor"
	"vcompressor/app/config"
	"vcompressor/app/logger"
)

// FFmpegEngine 通过 ffmpeg 进程执行转码
type FFmpegEngine struct {
	binary     string
	videoCodec string
	audioCodec string
	preset     string
	log        *logger.Logger
}

// NewFFmpegEngine 创建 ffmpeg 转码引擎
func NewFFmpegEngine(cfg config.FFmpegConfig, log *logger.Logger) *FFmpegEngine {
	e := &FFmpegEngine{
		binary:     cfg.FFmpegPath,
		videoCodec: cfg.VideoCodec,
		audioCodec: cfg.AudioCodec,
		preset:     cfg.Preset,
		log:        log,
	}
	if e.binary == "" {
		e.binary = "ffmpeg"
	}
	if e.videoCodec == "" {
		e.videoCodec = "libx264"
	}
	if e.audioCodec == "" {
		e.audioCodec = "aac"
	}
	if e.log == nil {
		e.log = logger.NewNop()
	}
	return e
}

// BuildArgs 生成 ffmpeg 参数，进度输出到 stdout
func (e *FFmpegEngine) BuildArgs(req compressor.Request) []string {
	args := []string{
		"-hide_banner",
		"-y",
		"-i", req.Input,
		"-vf", fmt.Sprintf("scale=%d:%d", req.Width, req.Height),
		"-r", strconv.Itoa(req.FPS),
		"-c:v", e.videoCodec,
	}
	if e.preset != "" {
		args = append(args, "-preset", e.preset)
	}
	args = append(args,
		"-b:v", strconv.Itoa(req.Bitrate),
		"-c:a", e.audioCodec,
		"-progress", "pipe:1",
		"-nostats",
		req.Output,
	)
	return args
}

// Transcode 执行转码，ctx 取消时终止 ffmpeg 进程
func (e *FFmpegEngine) Transcode(ctx context.Context, req compressor.Request, onProgress func(float64)) error {
	args := e.BuildArgs(req)
	cmd := exec.CommandContext(ctx, e.binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("创建 ffmpeg 输出管道失败: %w", err)
	}
	stderr := newTailBuffer(4096)
	cmd.Stderr = stderr

	e.log.Debugf("执行 ffmpeg: %s %v", e.binary, args)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("启动 ffmpeg 失败: %w", err)
	}

	parser := newProgressParser(req.Duration, onProgress)
	if err := parser.consume(stdout); err != nil {
		e.log.Warnf("读取 ffmpeg 进度失败: %v", err)
		// 读完剩余输出，否则 ffmpeg 写管道阻塞导致 Wait 无法返回
		_, _ = io.Copy(io.Discard, stdout)
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg 退出异常: %w: %s", err, stderr.String())
	}
	return nil
}
