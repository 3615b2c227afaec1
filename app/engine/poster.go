package engine

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os/exec"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"

	"vcompressor/app/logger"
	"vcompressor/app/utils"
)

// PosterGenerator 从视频中截取一帧并缩放为 JPEG 封面
type PosterGenerator struct {
	binary string
	width  int
	badge  bool // 在左下角标注视频分辨率
	log    *logger.Logger
}

// NewPosterGenerator 创建封面生成器，width <= 0 时保持原尺寸
func NewPosterGenerator(binary string, width int, badge bool, log *logger.Logger) *PosterGenerator {
	if binary == "" {
		binary = "ffmpeg"
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &PosterGenerator{binary: binary, width: width, badge: badge, log: log}
}

// Generate 截取 at 时刻的画面写入 poster
func (g *PosterGenerator) Generate(ctx context.Context, video, poster string, at time.Duration) error {
	if err := utils.EnsureParentDir(poster); err != nil {
		return err
	}

	frame := poster + ".frame.png"
	defer func() {
		_ = utils.RemoveIfExists(frame)
	}()

	cmd := exec.CommandContext(ctx, g.binary,
		"-hide_banner",
		"-y",
		"-ss", strconv.FormatFloat(at.Seconds(), 'f', 3, 64),
		"-i", video,
		"-frames:v", "1",
		frame,
	)
	stderr := newTailBuffer(2048)
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("截取封面失败: %w: %s", err, stderr.String())
	}

	if err := resizePoster(frame, poster, g.width, g.badge); err != nil {
		return err
	}
	g.log.Debugf("封面已生成: %s", poster)
	return nil
}

// resizePoster 按宽度等比缩放并保存为 JPEG，badge 为 true 时标注原始分辨率
func resizePoster(src, dst string, width int, badge bool) error {
	img, err := imaging.Open(src)
	if err != nil {
		return fmt.Errorf("打开封面帧失败: %w", err)
	}

	var out image.Image = img
	if width > 0 && img.Bounds().Dx() > width {
		out = imaging.Resize(img, width, 0, imaging.Lanczos)
	}
	if badge {
		out = drawBadge(out, fmt.Sprintf("%dx%d", img.Bounds().Dx(), img.Bounds().Dy()))
	}

	if err := imaging.Save(out, dst, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("保存封面失败: %w", err)
	}
	return nil
}

// drawBadge 在左下角绘制半透明底色的文字，使用 gg 内置字体
func drawBadge(img image.Image, text string) image.Image {
	dc := gg.NewContextForImage(img)

	const margin, padding = 6.0, 4.0
	tw, th := dc.MeasureString(text)
	h := float64(dc.Height())

	dc.SetColor(color.RGBA{A: 160})
	dc.DrawRectangle(margin, h-margin-th-2*padding, tw+2*padding, th+2*padding)
	dc.Fill()

	dc.SetColor(color.White)
	dc.DrawStringAnchored(text, margin+padding, h-margin-padding, 0, 0)
	return dc.Image()
}
