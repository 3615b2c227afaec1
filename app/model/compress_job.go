package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobStatus 压缩任务状态
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"    // 等待中
	JobStatusProcessing JobStatus = "processing" // 压缩中
	JobStatusCompleted  JobStatus = "completed"  // 已完成
	JobStatusFailed     JobStatus = "failed"     // 失败
	JobStatusCancelled  JobStatus = "cancelled"  // 已取消
)

// 任务来源
const (
	JobOriginAPI     = "api"
	JobOriginWatcher = "watcher"
	JobOriginCLI     = "cli"
)

// CompressJob 持久化的压缩任务
type CompressJob struct {
	ID            uint       `json:"id" gorm:"primarykey"`
	UID           string     `json:"uid" gorm:"size:36;uniqueIndex;not null"`
	Input         string     `json:"input" gorm:"not null;index"`
	Output        string     `json:"output" gorm:"not null"`
	Policy        string     `json:"policy" gorm:"size:20;default:general"`
	Origin        string     `json:"origin" gorm:"size:20;default:api"`
	Status        JobStatus  `json:"status" gorm:"size:20;default:pending;index"`
	Progress      int        `json:"progress" gorm:"default:0"` // 百分比
	Width         int        `json:"width"`
	Height        int        `json:"height"`
	Bitrate       int        `json:"bitrate"`
	FPS           int        `json:"fps"`
	OutputSize    int64      `json:"output_size"`
	ElapsedMillis int64      `json:"elapsed_millis"`
	PosterPath    string     `json:"poster_path"`
	RetryCount    int        `json:"retry_count" gorm:"default:0"`
	MaxRetryCount int        `json:"max_retry_count" gorm:"not null"`
	LastError     string     `json:"last_error" gorm:"type:text"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	StartedAt     *time.Time `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at"`
}

// TableName 指定表名
func (CompressJob) TableName() string {
	return "compress_jobs"
}

// BeforeCreate 生成对外使用的 UID
func (j *CompressJob) BeforeCreate(tx *gorm.DB) error {
	if j.UID == "" {
		j.UID = uuid.NewString()
	}
	return nil
}

// IsFinished 是否已结束
func (j *CompressJob) IsFinished() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanRetry 检查是否可以重试
func (j *CompressJob) CanRetry() bool {
	return j.RetryCount < j.MaxRetryCount && !j.IsFinished()
}

// SetProcessing 设置为压缩中
func (j *CompressJob) SetProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.StartedAt = &now
	j.Progress = 0
}

// SetRetryableError 记录可重试的错误，超过重试次数时标记为失败
func (j *CompressJob) SetRetryableError(err error) {
	j.RetryCount++
	j.LastError = err.Error()
	if j.RetryCount >= j.MaxRetryCount {
		j.finish(JobStatusFailed)
	} else {
		j.Status = JobStatusPending
		j.Progress = 0
	}
}

// SetFailed 直接标记为失败，不再重试
func (j *CompressJob) SetFailed(err error) {
	j.LastError = err.Error()
	j.finish(JobStatusFailed)
}

// SetCompleted 设置为已完成
func (j *CompressJob) SetCompleted(size int64, elapsed time.Duration) {
	j.OutputSize = size
	j.ElapsedMillis = elapsed.Milliseconds()
	j.Progress = 100
	j.LastError = ""
	j.finish(JobStatusCompleted)
}

// SetCancelled 设置为已取消
func (j *CompressJob) SetCancelled() {
	j.finish(JobStatusCancelled)
}

// Requeue 重新放回队列，服务关闭时使用
func (j *CompressJob) Requeue() {
	j.Status = JobStatusPending
	j.Progress = 0
	j.StartedAt = nil
}

func (j *CompressJob) finish(status JobStatus) {
	now := time.Now()
	j.Status = status
	j.CompletedAt = &now
}
