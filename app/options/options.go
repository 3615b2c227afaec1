package options

import (
	"errors"
	"fmt"

	"vcompressor/app/media"
)

var (
	// ErrInvalidParameter 构建参数违反约束
	ErrInvalidParameter = errors.New("无效的压缩参数")
	// ErrMissingOutput 未设置输出路径
	ErrMissingOutput = errors.New("必须设置输出路径")
)

// CompressOptions 经过校验的压缩参数，只能通过 Builder 创建，创建后不可修改
type CompressOptions struct {
	source  *media.Source
	output  string
	width   int
	height  int
	bitrate int
	fps     int
}

func (o *CompressOptions) Source() *media.Source {
	return o.source
}

func (o *CompressOptions) Output() string {
	return o.output
}

func (o *CompressOptions) Width() int {
	return o.width
}

func (o *CompressOptions) Height() int {
	return o.height
}

func (o *CompressOptions) Bitrate() int {
	return o.bitrate
}

func (o *CompressOptions) FPS() int {
	return o.fps
}

func (o *CompressOptions) String() string {
	return fmt.Sprintf("CompressOptions(%s -> %s, %dx%d, %dbps, %dfps)",
		o.source.Locator(), o.output, o.width, o.height, o.bitrate, o.fps)
}

// validate 检查所有不变量：偶数尺寸不超过源、码率和帧率为正且不超过已知的源值
func (o *CompressOptions) validate() error {
	if o.output == "" {
		return ErrMissingOutput
	}
	if o.width <= 0 || o.width%2 != 0 || o.width > o.source.Width() {
		return fmt.Errorf("%w: 宽度 %d 必须为不超过源宽度 %d 的正偶数", ErrInvalidParameter, o.width, o.source.Width())
	}
	if o.height <= 0 || o.height%2 != 0 || o.height > o.source.Height() {
		return fmt.Errorf("%w: 高度 %d 必须为不超过源高度 %d 的正偶数", ErrInvalidParameter, o.height, o.source.Height())
	}
	if o.bitrate <= 0 || (o.source.Bitrate() > 0 && o.bitrate > o.source.Bitrate()) {
		return fmt.Errorf("%w: 码率 %d 超出范围", ErrInvalidParameter, o.bitrate)
	}
	if o.fps <= 0 || (o.source.FPS() > 0 && o.fps > o.source.FPS()) {
		return fmt.Errorf("%w: 帧率 %d 超出范围", ErrInvalidParameter, o.fps)
	}
	return nil
}
