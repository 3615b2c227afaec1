package options

import (
	"fmt"
	"math"
	"strings"

	"vcompressor/app/media"
)

// Policy 压缩策略
type Policy int

const (
	// PolicyAsUsual 保持源参数重新编码
	PolicyAsUsual Policy = iota
	// PolicyGeneral 通用降采样，短边 540
	PolicyGeneral
	// PolicyCamera 录像压缩，按最小宽度缩放并降低码率
	PolicyCamera
)

var policyNames = map[Policy]string{
	PolicyAsUsual: "as_usual",
	PolicyGeneral: "general",
	PolicyCamera:  "camera",
}

func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy 解析策略名称，空字符串返回通用策略
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "general", "general_downscale":
		return PolicyGeneral, nil
	case "as_usual", "asusual", "usual":
		return PolicyAsUsual, nil
	case "camera", "camera_record":
		return PolicyCamera, nil
	default:
		return 0, fmt.Errorf("%w: 未知的压缩策略 %q", ErrInvalidParameter, s)
	}
}

// PolicyConfig 策略参数
type PolicyConfig struct {
	ShortEdge            int     `mapstructure:"short_edge" json:"short_edge"`
	MaxBitrate           int     `mapstructure:"max_bitrate" json:"max_bitrate"`
	MinFPS               int     `mapstructure:"min_fps" json:"min_fps"`
	MaxFPS               int     `mapstructure:"max_fps" json:"max_fps"`
	CameraMinWidth       int     `mapstructure:"camera_min_width" json:"camera_min_width"`
	CameraMinScale       float64 `mapstructure:"camera_min_scale" json:"camera_min_scale"`
	CameraBitrateDivisor int     `mapstructure:"camera_bitrate_divisor" json:"camera_bitrate_divisor"`
}

// DefaultPolicyConfig 默认策略参数
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		ShortEdge:            540,
		MaxBitrate:           550_000,
		MinFPS:               12,
		MaxFPS:               25,
		CameraMinWidth:       176,
		CameraMinScale:       0.1,
		CameraBitrateDivisor: 10,
	}
}

// Validate 检查策略参数
func (c PolicyConfig) Validate() error {
	if c.ShortEdge <= 0 || c.ShortEdge%2 != 0 {
		return fmt.Errorf("%w: short_edge 必须为正偶数", ErrInvalidParameter)
	}
	if c.MaxBitrate <= 0 {
		return fmt.Errorf("%w: max_bitrate 必须大于 0", ErrInvalidParameter)
	}
	if c.MinFPS <= 0 || c.MaxFPS < c.MinFPS {
		return fmt.Errorf("%w: 帧率范围无效 [%d, %d]", ErrInvalidParameter, c.MinFPS, c.MaxFPS)
	}
	if c.CameraMinWidth <= 0 {
		return fmt.Errorf("%w: camera_min_width 必须大于 0", ErrInvalidParameter)
	}
	if c.CameraMinScale <= 0 || c.CameraMinScale > 1 {
		return fmt.Errorf("%w: camera_min_scale 必须在 (0, 1] 之间", ErrInvalidParameter)
	}
	if c.CameraBitrateDivisor <= 0 {
		return fmt.Errorf("%w: camera_bitrate_divisor 必须大于 0", ErrInvalidParameter)
	}
	return nil
}

// Apply 按策略生成压缩参数
func Apply(policy Policy, source *media.Source, output string, cfg PolicyConfig) (*CompressOptions, error) {
	switch policy {
	case PolicyAsUsual:
		return AsUsual(source, output)
	case PolicyGeneral:
		return ChooseVideoOptions(source, output, cfg)
	case PolicyCamera:
		return CameraRecordOptions(source, output, cfg)
	default:
		return nil, fmt.Errorf("%w: 未知的压缩策略 %s", ErrInvalidParameter, policy)
	}
}

// AsUsual 保持所有源参数
func AsUsual(source *media.Source, output string) (*CompressOptions, error) {
	return NewBuilder(source).Output(output).Build()
}

// ChooseVideoOptions 通用降采样：短边缩放到 ShortEdge，长边按比例计算，
// 码率不超过 MaxBitrate，帧率限制在 [MinFPS, MaxFPS]。源短边不足时不放大。
func ChooseVideoOptions(source *media.Source, output string, cfg PolicyConfig) (*CompressOptions, error) {
	if source == nil {
		return NewBuilder(nil).Output(output).Build()
	}

	b := NewBuilder(source).Output(output)

	if source.Width() < source.Height() {
		short := min(cfg.ShortEdge, evenFloor(source.Width()))
		b.Width(short).Height(longEdge(short, source.Width(), source.Height()))
	} else {
		short := min(cfg.ShortEdge, evenFloor(source.Height()))
		b.Height(short).Width(longEdge(short, source.Height(), source.Width()))
	}

	bitrate := cfg.MaxBitrate
	if source.Bitrate() > 0 {
		bitrate = min(bitrate, source.Bitrate())
	}
	b.Bitrate(bitrate)

	b.FrameRate(max(cfg.MinFPS, min(source.FPS(), cfg.MaxFPS)))

	return b.Build()
}

// CameraRecordOptions 录像压缩：按 CameraMinWidth 计算统一缩放比例，码率为源码率除以 CameraBitrateDivisor
func CameraRecordOptions(source *media.Source, output string, cfg PolicyConfig) (*CompressOptions, error) {
	if source == nil {
		return NewBuilder(nil).Output(output).Build()
	}

	scale := cfg.CameraMinScale
	if minScale := float64(cfg.CameraMinWidth) / float64(source.Width()); minScale <= 1 {
		scale = max(cfg.CameraMinScale, minScale)
	}

	b := NewBuilder(source).Output(output).SizeScale(scale)

	// 源码率未知时保留默认码率
	if source.Bitrate() > 0 {
		b.Bitrate(max(1, source.Bitrate()/cfg.CameraBitrateDivisor))
	}

	return b.Build()
}

// longEdge 按短边比例计算长边，结果为偶数
func longEdge(short, sourceShort, sourceLong int) int {
	v := int(math.Round(float64(short) / float64(sourceShort) * float64(sourceLong)))
	if v/2 == 1 {
		v--
	}
	if v%2 == 1 {
		v++
	}
	return v
}
