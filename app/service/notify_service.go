package service

import (
	"context"
	"fmt"
	"time"

	"resty.dev/v3"

	"vcompressor/app/config"
	"vcompressor/app/logger"
	"vcompressor/app/model"
)

// JobNotification 任务结束时推送的内容
type JobNotification struct {
	UID           string          `json:"uid"`
	Input         string          `json:"input"`
	Output        string          `json:"output"`
	Policy        string          `json:"policy"`
	Status        model.JobStatus `json:"status"`
	OutputSize    int64           `json:"output_size"`
	ElapsedMillis int64           `json:"elapsed_millis"`
	PosterPath    string          `json:"poster_path,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// NotifyService 任务结束后向配置的地址推送结果
type NotifyService struct {
	url    string
	client *resty.Client
	log    *logger.Logger
}

// NewNotifyService 创建通知服务，未配置地址时返回 nil
func NewNotifyService(cfg config.NotifyConfig, log *logger.Logger) *NotifyService {
	if cfg.URL == "" {
		return nil
	}

	client := resty.New()
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.RetryCount > 0 {
		client.SetRetryCount(cfg.RetryCount)
		client.SetRetryWaitTime(500 * time.Millisecond)
	}
	client.SetHeader("Content-Type", "application/json")

	return &NotifyService{
		url:    cfg.URL,
		client: client,
		log:    log,
	}
}

// NotifyJob 推送任务结果
func (s *NotifyService) NotifyJob(ctx context.Context, job *model.CompressJob) error {
	payload := JobNotification{
		UID:           job.UID,
		Input:         job.Input,
		Output:        job.Output,
		Policy:        job.Policy,
		Status:        job.Status,
		OutputSize:    job.OutputSize,
		ElapsedMillis: job.ElapsedMillis,
		PosterPath:    job.PosterPath,
		Error:         job.LastError,
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("发送任务通知失败: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("发送任务通知失败，状态码: %d, 响应: %s", resp.StatusCode(), resp.String())
	}

	s.log.Debugf("任务通知已发送: UID=%s, Status=%s", job.UID, job.Status)
	return nil
}

// Close 释放 HTTP 客户端
func (s *NotifyService) Close() error {
	return s.client.Close()
}
