package media

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrSourceRead 媒体源无法打开或解析
var ErrSourceRead = errors.New("读取媒体源失败")

// Info 媒体检测器返回的原始测量值
type Info struct {
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Bitrate  int           `json:"bitrate"` // 比特率，0 表示未知
	FPS      int           `json:"fps"`     // 帧率，0 表示未知
	Duration time.Duration `json:"duration"`
}

// Inspector 媒体检测器，从定位符中提取宽高、码率、帧率
type Inspector interface {
	Inspect(ctx context.Context, locator string) (Info, error)
}

// Source 媒体源只读快照，创建后不可修改，可在多个任务间共享
type Source struct {
	locator string
	info    Info
}

// NewSource 调用检测器一次并构建媒体源
func NewSource(ctx context.Context, inspector Inspector, locator string) (*Source, error) {
	if inspector == nil {
		return nil, fmt.Errorf("%w: 未配置媒体检测器", ErrSourceRead)
	}

	info, err := inspector.Inspect(ctx, locator)
	if err != nil {
		if errors.Is(err, ErrSourceRead) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceRead, locator, err)
	}

	return FromInfo(locator, info)
}

// FromInfo 使用已知的测量值构建媒体源
func FromInfo(locator string, info Info) (*Source, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("%w: %s: 无效的视频尺寸 %dx%d", ErrSourceRead, locator, info.Width, info.Height)
	}
	if info.Bitrate < 0 || info.FPS < 0 || info.Duration < 0 {
		return nil, fmt.Errorf("%w: %s: 无效的码率或帧率", ErrSourceRead, locator)
	}

	return &Source{locator: locator, info: info}, nil
}

func (s *Source) Locator() string {
	return s.locator
}

func (s *Source) Width() int {
	return s.info.Width
}

func (s *Source) Height() int {
	return s.info.Height
}

func (s *Source) Bitrate() int {
	return s.info.Bitrate
}

func (s *Source) FPS() int {
	return s.info.FPS
}

func (s *Source) Duration() time.Duration {
	return s.info.Duration
}

// Info 返回测量值副本
func (s *Source) Info() Info {
	return s.info
}

func (s *Source) String() string {
	return fmt.Sprintf("Source(%s, %dx%d, %dbps, %dfps, %v)",
		s.locator, s.info.Width, s.info.Height, s.info.Bitrate, s.info.FPS, s.info.Duration)
}
