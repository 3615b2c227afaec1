package engine

import (
	"context"
	"image/color"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcompressor/app/compressor"
	"vcompressor/app/config"
)

func TestBuildArgs(t *testing.T) {
	e := NewFFmpegEngine(config.FFmpegConfig{Preset: "fast"}, nil)

	args := e.BuildArgs(compressor.Request{
		Input:   "/in/a.mov",
		Output:  "/out/a.mp4",
		Width:   540,
		Height:  960,
		Bitrate: 550000,
		FPS:     25,
	})

	assert.Equal(t, []string{
		"-hide_banner", "-y",
		"-i", "/in/a.mov",
		"-vf", "scale=540:960",
		"-r", "25",
		"-c:v", "libx264",
		"-preset", "fast",
		"-b:v", "550000",
		"-c:a", "aac",
		"-progress", "pipe:1",
		"-nostats",
		"/out/a.mp4",
	}, args)
}

func TestBuildArgsWithoutPreset(t *testing.T) {
	e := NewFFmpegEngine(config.FFmpegConfig{VideoCodec: "libx265"}, nil)

	args := e.BuildArgs(compressor.Request{Input: "a", Output: "b", Width: 2, Height: 2, Bitrate: 1, FPS: 1})
	assert.NotContains(t, args, "-preset")
	assert.Contains(t, args, "libx265")
}

func TestProgressParser(t *testing.T) {
	var got []float64
	p := newProgressParser(10*time.Second, func(f float64) { got = append(got, f) })

	input := strings.Join([]string{
		"frame=10",
		"out_time_us=2500000",
		"progress=continue",
		"out_time_us=2500000",
		"out_time_ms=5000000",
		"out_time_us=N/A",
		"out_time_us=4000000",
		"out_time_us=12000000",
		"progress=end",
	}, "\n")
	require.NoError(t, p.consume(strings.NewReader(input)))

	assert.Equal(t, []float64{0.25, 0.5, 1}, got)
}

func TestProgressParserUnknownDuration(t *testing.T) {
	var got []float64
	p := newProgressParser(0, func(f float64) { got = append(got, f) })

	require.NoError(t, p.consume(strings.NewReader("out_time_us=1000\nprogress=end\n")))
	assert.Equal(t, []float64{1}, got)
}

func TestTailBuffer(t *testing.T) {
	tb := newTailBuffer(8)
	_, _ = tb.Write([]byte("hello "))
	_, _ = tb.Write([]byte("world!"))
	assert.Equal(t, "o world!", tb.String())
}

func TestResizePoster(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "frame.png")
	dst := filepath.Join(dir, "poster.jpg")

	require.NoError(t, imaging.Save(imaging.New(1280, 720, color.NRGBA{R: 200, A: 255}), src))
	require.NoError(t, resizePoster(src, dst, 320, false))

	img, err := imaging.Open(dst)
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 180, img.Bounds().Dy())
}

func TestResizePosterKeepsSmallFrame(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "frame.png")
	dst := filepath.Join(dir, "poster.jpg")

	require.NoError(t, imaging.Save(imaging.New(200, 100, color.NRGBA{B: 200, A: 255}), src))
	require.NoError(t, resizePoster(src, dst, 320, false))

	img, err := imaging.Open(dst)
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
}

func TestResizePosterBadge(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "frame.png")
	dst := filepath.Join(dir, "poster.jpg")

	require.NoError(t, imaging.Save(imaging.New(1280, 720, color.NRGBA{R: 200, A: 255}), src))
	require.NoError(t, resizePoster(src, dst, 320, true))

	img, err := imaging.Open(dst)
	require.NoError(t, err)

	// 左下角被半透明底色覆盖，右上角保持原色
	r, _, _, _ := img.At(7, 172).RGBA()
	assert.Less(t, r>>8, uint32(150))
	r, _, _, _ = img.At(300, 10).RGBA()
	assert.Greater(t, r>>8, uint32(180))
}

func TestTranscodeMissingBinary(t *testing.T) {
	e := NewFFmpegEngine(config.FFmpegConfig{FFmpegPath: filepath.Join(t.TempDir(), "no-ffmpeg")}, nil)

	err := e.Transcode(context.Background(), compressor.Request{Input: "a", Output: "b", Width: 2, Height: 2, Bitrate: 1, FPS: 1}, nil)
	assert.Error(t, err)
}

func TestTranscodeDrainsOutputAfterProgressError(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("未找到 sh")
	}

	// 超长进度行让解析失败，之后的输出超过管道缓冲区
	script := filepath.Join(t.TempDir(), "fake-ffmpeg")
	body := "#!/bin/sh\n" +
		"head -c 200000 /dev/zero | tr '\\000' a\n" +
		"echo\n" +
		"head -c 200000 /dev/zero | tr '\\000' b\n" +
		"exit 0\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	e := NewFFmpegEngine(config.FFmpegConfig{FFmpegPath: script}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := e.Transcode(ctx, compressor.Request{Input: "a", Output: "b", Width: 2, Height: 2, Bitrate: 1, FPS: 1}, nil)
	require.NoError(t, err)
	assert.NoError(t, ctx.Err())
}

func TestTranscodeWithFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("未安装 ffmpeg")
	}

	dir := t.TempDir()
	input := filepath.Join(dir, "in.mp4")
	gen := exec.Command("ffmpeg", "-hide_banner", "-y", "-f", "lavfi", "-i", "testsrc=duration=1:size=320x240:rate=25", "-pix_fmt", "yuv420p", input)
	require.NoError(t, gen.Run())

	e := NewFFmpegEngine(config.FFmpegConfig{Preset: "ultrafast", AudioCodec: "aac"}, nil)
	var last float64
	err := e.Transcode(context.Background(), compressor.Request{
		Input:    input,
		Output:   filepath.Join(dir, "out.mp4"),
		Width:    160,
		Height:   120,
		Bitrate:  100000,
		FPS:      12,
		Duration: time.Second,
	}, func(f float64) { last = f })
	require.NoError(t, err)
	assert.Equal(t, 1.0, last)
}
