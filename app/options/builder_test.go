package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcompressor/app/media"
)

func newSource(t *testing.T, width, height, bitrate, fps int) *media.Source {
	t.Helper()
	src, err := media.FromInfo("/videos/input.mp4", media.Info{
		Width:   width,
		Height:  height,
		Bitrate: bitrate,
		FPS:     fps,
	})
	require.NoError(t, err)
	return src
}

func TestBuilderDefaultsMirrorSource(t *testing.T) {
	src := newSource(t, 1280, 720, 3_000_000, 30)

	opts, err := NewBuilder(src).Output("/out/a.mp4").Build()
	require.NoError(t, err)

	assert.Equal(t, 1280, opts.Width())
	assert.Equal(t, 720, opts.Height())
	assert.Equal(t, 3_000_000, opts.Bitrate())
	assert.Equal(t, 30, opts.FPS())
	assert.Equal(t, "/out/a.mp4", opts.Output())
	assert.Same(t, src, opts.Source())
}

func TestBuilderBitrateDefaultsToSource(t *testing.T) {
	src := newSource(t, 640, 480, 1_234_567, 24)

	opts, err := NewBuilder(src).Output("/out/a.mp4").Width(320).Build()
	require.NoError(t, err)
	assert.Equal(t, 1_234_567, opts.Bitrate())
}

func TestBuilderUnknownSourceValues(t *testing.T) {
	src := newSource(t, 640, 480, 0, 0)

	opts, err := NewBuilder(src).Output("/out/a.mp4").Build()
	require.NoError(t, err)
	assert.Equal(t, DefaultBitrate, opts.Bitrate())
	assert.Equal(t, DefaultFrameRate, opts.FPS())

	opts, err = NewBuilder(src).Output("/out/a.mp4").Bitrate(5_000_000).FrameRate(60).Build()
	require.NoError(t, err)
	assert.Equal(t, 5_000_000, opts.Bitrate())
	assert.Equal(t, 60, opts.FPS())
}

func TestBuilderOddSourceDimensions(t *testing.T) {
	src := newSource(t, 641, 361, 1_000_000, 25)

	opts, err := NewBuilder(src).Output("/out/a.mp4").Build()
	require.NoError(t, err)
	assert.Equal(t, 640, opts.Width())
	assert.Equal(t, 360, opts.Height())
}

func TestBuilderWidthRejectsInvalid(t *testing.T) {
	src := newSource(t, 1920, 1080, 1_000_000, 25)

	for _, w := range []int{641, 1, 3, 1919, 0, -2, -641} {
		_, err := NewBuilder(src).Output("/out/a.mp4").Width(w).Build()
		assert.ErrorIs(t, err, ErrInvalidParameter, "width %d", w)
	}
}

func TestBuilderHeightRejectsInvalid(t *testing.T) {
	src := newSource(t, 1920, 1080, 1_000_000, 25)

	for _, h := range []int{7, 0, -4} {
		_, err := NewBuilder(src).Output("/out/a.mp4").Height(h).Build()
		assert.ErrorIs(t, err, ErrInvalidParameter, "height %d", h)
	}
}

func TestBuilderClampsToSource(t *testing.T) {
	src := newSource(t, 640, 360, 800_000, 24)

	opts, err := NewBuilder(src).
		Output("/out/a.mp4").
		Size(1920, 1080).
		Bitrate(5_000_000).
		FrameRate(60).
		Build()
	require.NoError(t, err)

	assert.Equal(t, 640, opts.Width())
	assert.Equal(t, 360, opts.Height())
	assert.Equal(t, 800_000, opts.Bitrate())
	assert.Equal(t, 24, opts.FPS())
}

func TestBuilderScale(t *testing.T) {
	src := newSource(t, 1000, 500, 1_000_000, 25)

	opts, err := NewBuilder(src).Output("/out/a.mp4").WidthScale(0.333).HeightScale(0.5).Build()
	require.NoError(t, err)
	// round(333) = 333，奇数加一
	assert.Equal(t, 334, opts.Width())
	assert.Equal(t, 250, opts.Height())

	opts, err = NewBuilder(src).Output("/out/a.mp4").SizeScale(1).Build()
	require.NoError(t, err)
	assert.Equal(t, 1000, opts.Width())
	assert.Equal(t, 500, opts.Height())
}

func TestBuilderScaleOutOfRange(t *testing.T) {
	src := newSource(t, 1000, 500, 1_000_000, 25)

	for _, s := range []float64{0, -0.5, 1.01, 2} {
		_, err := NewBuilder(src).Output("/out/a.mp4").SizeScale(s).Build()
		assert.ErrorIs(t, err, ErrInvalidParameter, "scale %v", s)
	}
}

func TestBuilderRejectsNonPositiveRates(t *testing.T) {
	src := newSource(t, 1000, 500, 1_000_000, 25)

	_, err := NewBuilder(src).Output("/out/a.mp4").Bitrate(0).Build()
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = NewBuilder(src).Output("/out/a.mp4").FrameRate(-1).Build()
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestBuildWithoutOutput(t *testing.T) {
	src := newSource(t, 1000, 500, 1_000_000, 25)

	_, err := NewBuilder(src).Build()
	assert.ErrorIs(t, err, ErrMissingOutput)

	_, err = NewBuilder(src).Output("   ").Build()
	assert.ErrorIs(t, err, ErrMissingOutput)

	// 未设置输出路径优先于其他参数错误
	_, err = NewBuilder(src).Width(641).Build()
	assert.ErrorIs(t, err, ErrMissingOutput)
}

func TestBuilderKeepsFirstError(t *testing.T) {
	src := newSource(t, 1000, 500, 1_000_000, 25)

	b := NewBuilder(src).Output("/out/a.mp4").Width(3).Bitrate(-1)
	require.Error(t, b.Err())
	assert.Contains(t, b.Err().Error(), "宽度")

	_, err := b.Build()
	assert.Equal(t, b.Err(), err)
}

func TestBuilderNilSource(t *testing.T) {
	_, err := NewBuilder(nil).Output("/out/a.mp4").Width(2).Build()
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
