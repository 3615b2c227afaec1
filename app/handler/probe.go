package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"vcompressor/app/config"
	"vcompressor/app/logger"
	"vcompressor/app/media"
	"vcompressor/app/options"
)

// ProbeHandler 媒体检测和参数预览
type ProbeHandler struct {
	responder
	inspector media.Inspector
	compress  config.CompressConfig
	log       *logger.Logger
}

// NewProbeHandler 创建检测处理器
func NewProbeHandler(inspector media.Inspector, compress config.CompressConfig, log *logger.Logger) *ProbeHandler {
	return &ProbeHandler{
		inspector: inspector,
		compress:  compress,
		log:       log,
	}
}

// ProbeRequest 检测请求
type ProbeRequest struct {
	Path string `json:"path" binding:"required"`
}

// PreviewRequest 参数预览请求
type PreviewRequest struct {
	Path   string `json:"path" binding:"required"`
	Output string `json:"output"`
	Policy string `json:"policy"`
}

// PreviewResponse 按策略计算出的压缩参数
type PreviewResponse struct {
	Source  media.Info `json:"source"`
	Policy  string     `json:"policy"`
	Output  string     `json:"output"`
	Width   int        `json:"width"`
	Height  int        `json:"height"`
	Bitrate int        `json:"bitrate"`
	FPS     int        `json:"fps"`
}

// Probe 读取视频的宽高、码率、帧率
func (h *ProbeHandler) Probe(c *gin.Context) {
	var req ProbeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}

	source, err := media.NewSource(c.Request.Context(), h.inspector, req.Path)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.success(c, source.Info(), "success")
}

// Preview 计算压缩参数但不执行
func (h *ProbeHandler) Preview(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}

	name := req.Policy
	if name == "" {
		name = h.compress.Policy
	}
	policy, err := options.ParsePolicy(name)
	if err != nil {
		h.fail(c, err)
		return
	}

	source, err := media.NewSource(c.Request.Context(), h.inspector, req.Path)
	if err != nil {
		h.fail(c, err)
		return
	}

	output := req.Output
	if output == "" {
		output = "preview.mp4"
	}
	opts, err := options.Apply(policy, source, output, h.compress.PolicyConfig())
	if err != nil {
		h.fail(c, err)
		return
	}

	h.success(c, PreviewResponse{
		Source:  source.Info(),
		Policy:  policy.String(),
		Output:  opts.Output(),
		Width:   opts.Width(),
		Height:  opts.Height(),
		Bitrate: opts.Bitrate(),
		FPS:     opts.FPS(),
	}, "success")
}

func (h *ProbeHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, media.ErrSourceRead):
		h.error(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, options.ErrInvalidParameter):
		h.error(c, http.StatusBadRequest, err.Error())
	default:
		h.log.Errorf("检测失败: %v", err)
		h.error(c, http.StatusInternalServerError, "检测失败")
	}
}
