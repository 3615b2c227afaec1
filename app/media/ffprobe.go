package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// probeOutput ffprobe -print_format json 的输出
type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeFormat struct {
	Duration string `json:"duration"`
	BitRate  string `json:"bit_rate"`
}

type probeStream struct {
	CodecType    string            `json:"codec_type"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	BitRate      string            `json:"bit_rate"`
	AvgFrameRate string            `json:"avg_frame_rate"`
	RFrameRate   string            `json:"r_frame_rate"`
	Duration     string            `json:"duration"`
	Tags         map[string]string `json:"tags"`
	SideDataList []probeSideData   `json:"side_data_list"`
}

type probeSideData struct {
	Rotation float64 `json:"rotation"`
}

// FFprobeInspector 基于 ffprobe 的媒体检测器
type FFprobeInspector struct {
	binary string
	log    *zap.Logger
}

// NewFFprobeInspector 创建 ffprobe 检测器，binary 为空时使用 PATH 中的 ffprobe
func NewFFprobeInspector(binary string, log *zap.Logger) *FFprobeInspector {
	if binary == "" {
		binary = "ffprobe"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FFprobeInspector{binary: binary, log: log}
}

// Inspect 执行 ffprobe 并解析第一个视频流
func (f *FFprobeInspector) Inspect(ctx context.Context, locator string) (Info, error) {
	cmd := exec.CommandContext(ctx, f.binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		locator,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Info{}, fmt.Errorf("%w: ffprobe 执行失败: %s: %w - %s", ErrSourceRead, locator, err, stderr.String())
	}

	info, err := parseProbeOutput(stdout.Bytes())
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s: %w", ErrSourceRead, locator, err)
	}

	f.log.Debug("ffprobe 检测完成",
		zap.String("locator", locator),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.Int("bitrate", info.Bitrate),
		zap.Int("fps", info.FPS),
		zap.Duration("duration", info.Duration))
	return info, nil
}

// parseProbeOutput 从 ffprobe JSON 中提取第一个视频流的参数
func parseProbeOutput(data []byte) (Info, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Info{}, fmt.Errorf("解析 ffprobe 输出失败: %w", err)
	}

	var video *probeStream
	for i := range out.Streams {
		if out.Streams[i].CodecType == "video" {
			video = &out.Streams[i]
			break
		}
	}
	if video == nil {
		return Info{}, fmt.Errorf("未找到视频流")
	}

	info := Info{
		Width:  video.Width,
		Height: video.Height,
	}

	// 旋转 90/270 度的视频按显示方向交换宽高
	if isQuarterTurn(video.rotation()) {
		info.Width, info.Height = info.Height, info.Width
	}

	info.Bitrate = parseInt(video.BitRate)
	if info.Bitrate <= 0 {
		info.Bitrate = parseInt(out.Format.BitRate)
	}

	info.FPS = parseFrameRate(video.AvgFrameRate)
	if info.FPS <= 0 {
		info.FPS = parseFrameRate(video.RFrameRate)
	}

	seconds := parseFloat(video.Duration)
	if seconds <= 0 {
		seconds = parseFloat(out.Format.Duration)
	}
	info.Duration = time.Duration(seconds * float64(time.Second))

	return info, nil
}

func (s *probeStream) rotation() int {
	if v, ok := s.Tags["rotate"]; ok {
		if r, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return r
		}
	}
	for _, sd := range s.SideDataList {
		if sd.Rotation != 0 {
			return int(math.Round(sd.Rotation))
		}
	}
	return 0
}

func isQuarterTurn(rotation int) bool {
	r := rotation % 180
	return r == 90 || r == -90
}

// parseFrameRate 解析 "30000/1001" 形式的帧率并四舍五入
func parseFrameRate(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	num, den, found := strings.Cut(s, "/")
	if !found {
		return int(math.Round(parseFloat(s)))
	}

	n := parseFloat(num)
	d := parseFloat(den)
	if d <= 0 || n <= 0 {
		return 0
	}
	return int(math.Round(n / d))
}

func parseInt(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
