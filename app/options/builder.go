package options

import (
	"fmt"
	"math"
	"strings"

	"vcompressor/app/media"
)

const (
	// DefaultFrameRate 源帧率未知时的默认帧率
	DefaultFrameRate = 20
	// DefaultBitrate 源码率未知时的默认码率
	DefaultBitrate = 2_000_000
)

// Builder 压缩参数构建器。
//
// 所有参数默认取源值，设置器会把请求值限制在源值以内。
// 设置器出错时记录第一个错误并保持链式调用，Build 时返回该错误。
type Builder struct {
	source  *media.Source
	output  string
	width   int
	height  int
	bitrate int
	fps     int
	err     error
}

// NewBuilder 以源参数为默认值创建构建器
func NewBuilder(source *media.Source) *Builder {
	b := &Builder{source: source}
	if source == nil {
		b.fail("媒体源不能为空")
		return b
	}

	b.width = evenFloor(source.Width())
	b.height = evenFloor(source.Height())
	b.bitrate = source.Bitrate()
	b.fps = source.FPS()

	if b.bitrate <= 0 {
		b.bitrate = DefaultBitrate
	}
	if b.fps <= 0 {
		b.fps = DefaultFrameRate
	}
	return b
}

// Output 设置输出路径
func (b *Builder) Output(path string) *Builder {
	b.output = strings.TrimSpace(path)
	return b
}

// Width 设置目标宽度，必须为正偶数，结果不超过源宽度
func (b *Builder) Width(width int) *Builder {
	if b.source == nil {
		return b
	}
	if width <= 0 || width%2 != 0 {
		b.fail("宽度必须为正偶数: %d", width)
		return b
	}
	if w, ok := clampDimension(width, b.source.Width()); ok {
		b.width = w
	} else {
		b.fail("源宽度 %d 过小", b.source.Width())
	}
	return b
}

// Height 设置目标高度，必须为正偶数，结果不超过源高度
func (b *Builder) Height(height int) *Builder {
	if b.source == nil {
		return b
	}
	if height <= 0 || height%2 != 0 {
		b.fail("高度必须为正偶数: %d", height)
		return b
	}
	if h, ok := clampDimension(height, b.source.Height()); ok {
		b.height = h
	} else {
		b.fail("源高度 %d 过小", b.source.Height())
	}
	return b
}

// Size 同时设置宽高
func (b *Builder) Size(width, height int) *Builder {
	return b.Width(width).Height(height)
}

// WidthScale 按源宽度的比例设置宽度，scale 取值 (0, 1]
func (b *Builder) WidthScale(scale float64) *Builder {
	if b.source == nil {
		return b
	}
	if !validScale(scale) {
		b.fail("缩放比例必须在 (0, 1] 之间: %v", scale)
		return b
	}
	return b.Width(scaleEven(b.source.Width(), scale))
}

// HeightScale 按源高度的比例设置高度，scale 取值 (0, 1]
func (b *Builder) HeightScale(scale float64) *Builder {
	if b.source == nil {
		return b
	}
	if !validScale(scale) {
		b.fail("缩放比例必须在 (0, 1] 之间: %v", scale)
		return b
	}
	return b.Height(scaleEven(b.source.Height(), scale))
}

// SizeScale 宽高使用相同的缩放比例
func (b *Builder) SizeScale(scale float64) *Builder {
	return b.WidthScale(scale).HeightScale(scale)
}

// Bitrate 设置目标码率，源码率已知时不超过源码率
func (b *Builder) Bitrate(bitrate int) *Builder {
	if b.source == nil {
		return b
	}
	if bitrate <= 0 {
		b.fail("码率必须大于 0: %d", bitrate)
		return b
	}
	b.bitrate = clampToSource(bitrate, b.source.Bitrate())
	return b
}

// FrameRate 设置目标帧率，源帧率已知时不超过源帧率
func (b *Builder) FrameRate(fps int) *Builder {
	if b.source == nil {
		return b
	}
	if fps <= 0 {
		b.fail("帧率必须大于 0: %d", fps)
		return b
	}
	b.fps = clampToSource(fps, b.source.FPS())
	return b
}

// Err 返回构建过程中记录的第一个错误
func (b *Builder) Err() error {
	return b.err
}

// Build 校验并生成不可变的压缩参数
func (b *Builder) Build() (*CompressOptions, error) {
	if b.output == "" {
		return nil, ErrMissingOutput
	}
	if b.err != nil {
		return nil, b.err
	}

	opts := &CompressOptions{
		source:  b.source,
		output:  b.output,
		width:   b.width,
		height:  b.height,
		bitrate: b.bitrate,
		fps:     b.fps,
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func (b *Builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
	}
}

// evenFloor 不超过 v 的最大偶数
func evenFloor(v int) int {
	return v &^ 1
}

func clampDimension(requested, source int) (int, bool) {
	limit := evenFloor(source)
	if limit <= 0 {
		return 0, false
	}
	return min(requested, limit), true
}

// clampToSource 源值未知（<= 0）时不做限制
func clampToSource(requested, source int) int {
	if source <= 0 {
		return requested
	}
	return min(requested, source)
}

func validScale(scale float64) bool {
	return scale > 0 && scale <= 1
}

// scaleEven 四舍五入后奇数加一
func scaleEven(dimension int, scale float64) int {
	v := int(math.Round(float64(dimension) * scale))
	if v%2 == 1 {
		v++
	}
	return v
}
