package options

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChooseVideoOptionsPortrait(t *testing.T) {
	src := newSource(t, 1080, 1920, 2_000_000, 30)

	opts, err := ChooseVideoOptions(src, "/out/a.mp4", DefaultPolicyConfig())
	require.NoError(t, err)

	assert.Equal(t, 540, opts.Width())
	assert.Equal(t, 960, opts.Height())
	assert.Equal(t, 550_000, opts.Bitrate())
	assert.Equal(t, 25, opts.FPS())
}

func TestChooseVideoOptionsLandscape(t *testing.T) {
	src := newSource(t, 1920, 1080, 400_000, 10)

	opts, err := ChooseVideoOptions(src, "/out/a.mp4", DefaultPolicyConfig())
	require.NoError(t, err)

	assert.Equal(t, 960, opts.Width())
	assert.Equal(t, 540, opts.Height())
	assert.Equal(t, 400_000, opts.Bitrate())
	// 不超过源帧率
	assert.Equal(t, 10, opts.FPS())
}

func TestChooseVideoOptionsUnknownFPS(t *testing.T) {
	src := newSource(t, 1920, 1080, 0, 0)

	opts, err := ChooseVideoOptions(src, "/out/a.mp4", DefaultPolicyConfig())
	require.NoError(t, err)
	assert.Equal(t, 12, opts.FPS())
	assert.Equal(t, 550_000, opts.Bitrate())
}

func TestChooseVideoOptionsNoUpscale(t *testing.T) {
	src := newSource(t, 320, 480, 300_000, 30)

	opts, err := ChooseVideoOptions(src, "/out/a.mp4", DefaultPolicyConfig())
	require.NoError(t, err)
	assert.Equal(t, 320, opts.Width())
	assert.Equal(t, 480, opts.Height())
}

func TestChooseVideoOptionsPortraitProperty(t *testing.T) {
	cfg := DefaultPolicyConfig()

	for width := 540; width <= 2160; width += 37 {
		for _, ratio := range []float64{1.01, 1.333, 1.5, 16.0 / 9.0, 2.1} {
			height := int(float64(width) * ratio)
			if height <= width {
				continue
			}
			src := newSource(t, width, height, 2_000_000, 30)

			opts, err := ChooseVideoOptions(src, "/out/a.mp4", cfg)
			require.NoError(t, err, "%dx%d", width, height)

			assert.Equal(t, 540, opts.Width(), "%dx%d", width, height)
			assert.Zero(t, opts.Height()%2, "%dx%d", width, height)

			expected := 540.0 / float64(width) * float64(height)
			assert.LessOrEqual(t, math.Abs(float64(opts.Height())-expected), 1.5, "%dx%d", width, height)
		}
	}
}

func TestChooseVideoOptionsBounds(t *testing.T) {
	cfg := DefaultPolicyConfig()

	for _, bitrate := range []int{10_000, 550_000, 600_000, 8_000_000} {
		for _, fps := range []int{0, 12, 15, 24, 25, 30, 60, 120} {
			src := newSource(t, 1280, 720, bitrate, fps)

			opts, err := ChooseVideoOptions(src, "/out/a.mp4", cfg)
			require.NoError(t, err)

			assert.LessOrEqual(t, opts.Bitrate(), min(550_000, bitrate))
			assert.GreaterOrEqual(t, opts.FPS(), 12)
			assert.LessOrEqual(t, opts.FPS(), 25)
		}
	}
}

func TestCameraRecordOptions(t *testing.T) {
	src := newSource(t, 320, 240, 50_000, 15)

	opts, err := CameraRecordOptions(src, "/out/a.mp4", DefaultPolicyConfig())
	require.NoError(t, err)

	// 176/320 = 0.55
	assert.Equal(t, 176, opts.Width())
	assert.Equal(t, 132, opts.Height())
	assert.Equal(t, 5_000, opts.Bitrate())
	assert.Equal(t, 15, opts.FPS())
}

func TestCameraRecordOptionsMinScale(t *testing.T) {
	src := newSource(t, 3840, 2160, 40_000_000, 30)

	opts, err := CameraRecordOptions(src, "/out/a.mp4", DefaultPolicyConfig())
	require.NoError(t, err)

	// 176/3840 < 0.1，使用 0.1
	assert.Equal(t, 384, opts.Width())
	assert.Equal(t, 216, opts.Height())
	assert.Equal(t, 4_000_000, opts.Bitrate())
}

func TestCameraRecordOptionsNarrowSource(t *testing.T) {
	src := newSource(t, 160, 120, 100_000, 15)

	opts, err := CameraRecordOptions(src, "/out/a.mp4", DefaultPolicyConfig())
	require.NoError(t, err)

	// 176/160 > 1，使用 0.1
	assert.Equal(t, 16, opts.Width())
	assert.Equal(t, 12, opts.Height())
	assert.Equal(t, 10_000, opts.Bitrate())
}

func TestCameraRecordOptionsBitrateProperty(t *testing.T) {
	cfg := DefaultPolicyConfig()

	for _, bitrate := range []int{10, 99, 5_000, 123_457, 2_000_001, 9_999_999} {
		src := newSource(t, 1280, 720, bitrate, 30)

		opts, err := CameraRecordOptions(src, "/out/a.mp4", cfg)
		require.NoError(t, err)
		assert.Equal(t, bitrate/10, opts.Bitrate(), "bitrate %d", bitrate)
	}
}

func TestAsUsual(t *testing.T) {
	src := newSource(t, 1280, 720, 3_000_000, 30)

	opts, err := AsUsual(src, "/out/a.mp4")
	require.NoError(t, err)
	assert.Equal(t, 1280, opts.Width())
	assert.Equal(t, 720, opts.Height())
	assert.Equal(t, 3_000_000, opts.Bitrate())
	assert.Equal(t, 30, opts.FPS())

	_, err = AsUsual(src, "")
	assert.ErrorIs(t, err, ErrMissingOutput)
}

func TestApply(t *testing.T) {
	src := newSource(t, 1080, 1920, 2_000_000, 30)
	cfg := DefaultPolicyConfig()

	tests := []struct {
		policy Policy
		width  int
	}{
		{PolicyAsUsual, 1080},
		{PolicyGeneral, 540},
		{PolicyCamera, 176},
	}

	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			opts, err := Apply(tt.policy, src, "/out/a.mp4", cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.width, opts.Width())
		})
	}

	_, err := Apply(Policy(42), src, "/out/a.mp4", cfg)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestParsePolicy(t *testing.T) {
	tests := map[string]Policy{
		"":         PolicyGeneral,
		"general":  PolicyGeneral,
		"AS_USUAL": PolicyAsUsual,
		" camera ": PolicyCamera,
	}
	for in, want := range tests {
		got, err := ParsePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParsePolicy("fast")
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestPolicyConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicyConfig().Validate())

	cfg := DefaultPolicyConfig()
	cfg.MaxFPS = 5
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidParameter)

	cfg = DefaultPolicyConfig()
	cfg.ShortEdge = 541
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidParameter)
}
