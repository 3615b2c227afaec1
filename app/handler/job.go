package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"vcompressor/app/logger"
	"vcompressor/app/model"
	"vcompressor/app/options"
	"vcompressor/app/service"
)

// JobQueue 任务处理器依赖的队列操作
type JobQueue interface {
	Enqueue(req service.EnqueueRequest) (*model.CompressJob, error)
	GetJob(uid string) (*model.CompressJob, error)
	ListJobs(status string, limit, offset int) ([]model.CompressJob, int64, error)
	CancelJob(uid string) (*model.CompressJob, error)
	GetQueueStatus() (map[string]int64, error)
}

// JobHandler 压缩任务处理器
type JobHandler struct {
	responder
	queue JobQueue
	log   *logger.Logger
}

// NewJobHandler 创建压缩任务处理器
func NewJobHandler(queue JobQueue, log *logger.Logger) *JobHandler {
	return &JobHandler{
		queue: queue,
		log:   log,
	}
}

// CreateJob 添加压缩任务
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req service.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}
	req.Origin = model.JobOriginAPI

	job, err := h.queue.Enqueue(req)
	if err != nil {
		h.fail(c, err, "添加任务失败")
		return
	}

	h.success(c, job, "任务已添加")
}

// GetJobs 获取任务列表，支持按状态过滤和分页
func (h *JobHandler) GetJobs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}

	status := c.Query("status")
	jobs, total, err := h.queue.ListJobs(status, pageSize, (page-1)*pageSize)
	if err != nil {
		h.fail(c, err, "获取任务列表失败")
		return
	}

	h.success(c, PageResult{
		Items:    jobs,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, "success")
}

// GetJob 获取单个任务
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.queue.GetJob(c.Param("id"))
	if err != nil {
		h.fail(c, err, "获取任务失败")
		return
	}
	h.success(c, job, "success")
}

// CancelJob 取消任务
func (h *JobHandler) CancelJob(c *gin.Context) {
	job, err := h.queue.CancelJob(c.Param("id"))
	if err != nil {
		h.fail(c, err, "取消任务失败")
		return
	}
	h.success(c, job, "已请求取消")
}

// GetQueueStatus 获取队列统计
func (h *JobHandler) GetQueueStatus(c *gin.Context) {
	status, err := h.queue.GetQueueStatus()
	if err != nil {
		h.fail(c, err, "获取队列状态失败")
		return
	}
	h.success(c, status, "success")
}

// fail 按错误类型返回对应状态码
func (h *JobHandler) fail(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		h.error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrJobFinished):
		h.error(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidJob), errors.Is(err, options.ErrInvalidParameter):
		h.error(c, http.StatusBadRequest, err.Error())
	default:
		h.log.Errorf("%s: %v", message, err)
		h.error(c, http.StatusInternalServerError, message)
	}
}
