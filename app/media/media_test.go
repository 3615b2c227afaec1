package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingInspector struct {
	calls int
	info  Info
	err   error
}

func (c *countingInspector) Inspect(ctx context.Context, locator string) (Info, error) {
	c.calls++
	return c.info, c.err
}

func TestParseProbeOutput(t *testing.T) {
	data := []byte(`{
		"format": {"duration": "12.5", "bit_rate": "3000000"},
		"streams": [
			{"codec_type": "audio", "bit_rate": "128000"},
			{"codec_type": "video", "width": 1920, "height": 1080, "bit_rate": "2500000",
			 "avg_frame_rate": "30000/1001", "r_frame_rate": "30/1"}
		]
	}`)

	info, err := parseProbeOutput(data)
	require.NoError(t, err)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
	assert.Equal(t, 2500000, info.Bitrate)
	assert.Equal(t, 30, info.FPS)
	assert.Equal(t, 12500*time.Millisecond, info.Duration)
}

func TestParseProbeOutputFallbacks(t *testing.T) {
	data := []byte(`{
		"format": {"duration": "3", "bit_rate": "800000"},
		"streams": [
			{"codec_type": "video", "width": 1280, "height": 720,
			 "avg_frame_rate": "0/0", "r_frame_rate": "25/1",
			 "side_data_list": [{"rotation": -90}]}
		]
	}`)

	info, err := parseProbeOutput(data)
	require.NoError(t, err)
	// 竖拍视频按显示方向交换宽高
	assert.Equal(t, 720, info.Width)
	assert.Equal(t, 1280, info.Height)
	assert.Equal(t, 800000, info.Bitrate)
	assert.Equal(t, 25, info.FPS)
	assert.Equal(t, 3*time.Second, info.Duration)
}

func TestParseProbeOutputRotateTag(t *testing.T) {
	data := []byte(`{"streams": [{"codec_type": "video", "width": 640, "height": 480, "tags": {"rotate": "270"}}]}`)

	info, err := parseProbeOutput(data)
	require.NoError(t, err)
	assert.Equal(t, 480, info.Width)
	assert.Equal(t, 640, info.Height)
	assert.Zero(t, info.Bitrate)
	assert.Zero(t, info.FPS)
}

func TestParseProbeOutputErrors(t *testing.T) {
	_, err := parseProbeOutput([]byte(`not json`))
	assert.Error(t, err)

	_, err = parseProbeOutput([]byte(`{"streams": [{"codec_type": "audio"}]}`))
	assert.ErrorContains(t, err, "未找到视频流")
}

func TestParseFrameRate(t *testing.T) {
	assert.Equal(t, 24, parseFrameRate("24000/1001"))
	assert.Equal(t, 60, parseFrameRate("60"))
	assert.Equal(t, 0, parseFrameRate("30/0"))
	assert.Equal(t, 0, parseFrameRate(""))
}

func TestNewSource(t *testing.T) {
	insp := &countingInspector{info: Info{Width: 1080, Height: 1920, Bitrate: 1000, FPS: 30}}

	src, err := NewSource(context.Background(), insp, "/in.mp4")
	require.NoError(t, err)
	assert.Equal(t, "/in.mp4", src.Locator())
	assert.Equal(t, 1080, src.Width())
	assert.Equal(t, 1920, src.Height())
	assert.Equal(t, 1000, src.Bitrate())
	assert.Equal(t, 30, src.FPS())
	assert.Equal(t, 1, insp.calls)
}

func TestNewSourceErrors(t *testing.T) {
	_, err := NewSource(context.Background(), nil, "/in.mp4")
	assert.ErrorIs(t, err, ErrSourceRead)

	_, err = NewSource(context.Background(), &countingInspector{err: errors.New("boom")}, "/in.mp4")
	assert.ErrorIs(t, err, ErrSourceRead)
	assert.ErrorContains(t, err, "boom")

	_, err = NewSource(context.Background(), &countingInspector{info: Info{Width: 0, Height: 10}}, "/in.mp4")
	assert.ErrorIs(t, err, ErrSourceRead)

	_, err = FromInfo("/in.mp4", Info{Width: 10, Height: 10, FPS: -1})
	assert.ErrorIs(t, err, ErrSourceRead)
}

func TestCachedInspector(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.mp4")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	next := &countingInspector{info: Info{Width: 10, Height: 10}}
	cached := NewCachedInspector(next, time.Minute)

	_, err := cached.Inspect(context.Background(), path)
	require.NoError(t, err)
	_, err = cached.Inspect(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)

	// 文件内容变化后重新检测
	require.NoError(t, os.WriteFile(path, []byte("version2"), 0o644))
	_, err = cached.Inspect(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedInspectorSkipsErrors(t *testing.T) {
	next := &countingInspector{err: errors.New("boom")}
	cached := NewCachedInspector(next, 0)

	_, err := cached.Inspect(context.Background(), "/missing.mp4")
	assert.Error(t, err)
	_, err = cached.Inspect(context.Background(), "/missing.mp4")
	assert.Error(t, err)
	assert.Equal(t, 2, next.calls)
}
