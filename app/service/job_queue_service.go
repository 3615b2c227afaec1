package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"vcompressor/app/async"
	"vcompressor/app/compressor"
	"vcompressor/app/config"
	"vcompressor/app/logger"
	"vcompressor/app/media"
	"vcompressor/app/metrics"
	"vcompressor/app/model"
	"vcompressor/app/options"
	"vcompressor/app/utils"
)

var (
	// ErrJobNotFound 任务不存在
	ErrJobNotFound = errors.New("任务不存在")
	// ErrJobFinished 任务已结束，无法取消
	ErrJobFinished = errors.New("任务已结束")
	// ErrInvalidJob 任务参数无效
	ErrInvalidJob = errors.New("无效的任务参数")

	errOutputMissing = errors.New("转码结束但输出文件缺失或为空")
)

// PosterMaker 封面生成
type PosterMaker interface {
	Generate(ctx context.Context, video, poster string, at time.Duration) error
}

// Notifier 任务结束通知
type Notifier interface {
	NotifyJob(ctx context.Context, job *model.CompressJob) error
}

// JobQueueDeps 任务队列依赖，Poster 和 Notifier 可以为空
type JobQueueDeps struct {
	DB        *gorm.DB
	Inspector media.Inspector
	Engine    compressor.Engine
	Poster    PosterMaker
	Notifier  Notifier
}

// EnqueueRequest 添加任务的参数
type EnqueueRequest struct {
	Input  string `json:"input" binding:"required"`
	Output string `json:"output"`
	Policy string `json:"policy"`
	Origin string `json:"-"`
}

type compressTask = async.Task[*options.CompressOptions, compressor.Result]

// JobQueueService 持久化压缩任务队列
type JobQueueService struct {
	db         *gorm.DB
	cfg        *config.Config
	log        *logger.Logger
	inspector  media.Inspector
	compressor *compressor.Compressor
	poster     PosterMaker
	notifier   Notifier

	looper   *async.Looper // 所有任务回调都在这里执行
	loopDone chan struct{}
	workers  chan struct{} // 用于控制并发数的信号量
	wake     chan struct{}
	cron     *cron.Cron

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex

	tasksMu         sync.Mutex
	tasks           map[uint]*compressTask
	cancelRequested map[uint]bool
}

// NewJobQueueService 创建任务队列
func NewJobQueueService(cfg *config.Config, log *logger.Logger, deps JobQueueDeps) *JobQueueService {
	concurrency := cfg.Queue.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &JobQueueService{
		db:              deps.DB,
		cfg:             cfg,
		log:             log,
		inspector:       deps.Inspector,
		compressor:      compressor.New(deps.Engine, log.Named("compressor")),
		poster:          deps.Poster,
		notifier:        deps.Notifier,
		workers:         make(chan struct{}, concurrency),
		wake:            make(chan struct{}, 1),
		tasks:           make(map[uint]*compressTask),
		cancelRequested: make(map[uint]bool),
	}
}

// Enqueue 添加压缩任务，同一输入已有未结束的任务时直接返回该任务
func (s *JobQueueService) Enqueue(req EnqueueRequest) (*model.CompressJob, error) {
	input := strings.TrimSpace(req.Input)
	if input == "" {
		return nil, fmt.Errorf("%w: 输入路径不能为空", ErrInvalidJob)
	}

	policy, err := options.ParsePolicy(req.Policy)
	if err != nil {
		return nil, err
	}

	output := strings.TrimSpace(req.Output)
	if output == "" {
		output = DefaultOutputPath(input)
	}
	if filepath.Clean(output) == filepath.Clean(input) {
		return nil, fmt.Errorf("%w: 输出路径不能与输入路径相同", ErrInvalidJob)
	}

	origin := req.Origin
	if origin == "" {
		origin = model.JobOriginAPI
	}

	var existing model.CompressJob
	err = s.db.Where("input = ? AND status IN ?", input,
		[]model.JobStatus{model.JobStatusPending, model.JobStatusProcessing}).First(&existing).Error
	if err == nil {
		s.log.Infof("任务已存在，跳过添加: Input=%s, UID=%s", input, existing.UID)
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	job := &model.CompressJob{
		Input:         input,
		Output:        output,
		Policy:        policy.String(),
		Origin:        origin,
		Status:        model.JobStatusPending,
		MaxRetryCount: s.cfg.Queue.MaxRetries,
	}
	if err := s.db.Create(job).Error; err != nil {
		s.log.Errorf("添加压缩任务失败: %v", err)
		return nil, err
	}

	metrics.JobsEnqueued.WithLabelValues(origin).Inc()
	s.log.Infof("压缩任务已添加到队列: UID=%s, Input=%s, Output=%s, Policy=%s", job.UID, input, output, job.Policy)

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return job, nil
}

// DefaultOutputPath 未指定输出时，在输入旁边生成 name_compressed.mp4
func DefaultOutputPath(input string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(filepath.Dir(input), base+"_compressed.mp4")
}

// Start 启动任务处理器
func (s *JobQueueService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		s.log.Warn("压缩任务队列已经在运行中")
		return
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	// 上次异常退出时遗留的任务重新排队
	result := s.db.Model(&model.CompressJob{}).
		Where("status = ?", model.JobStatusProcessing).
		Updates(map[string]any{"status": model.JobStatusPending, "progress": 0})
	if result.Error != nil {
		s.log.Errorf("重置处理中的任务失败: %v", result.Error)
	} else if result.RowsAffected > 0 {
		s.log.Infof("已将 %d 个处理中的任务重新排队", result.RowsAffected)
	}

	// 回调循环独立于 s.ctx，关闭时等所有任务回调结束后再退出
	s.looper = async.NewLooper(64)
	s.loopDone = make(chan struct{})
	go func(looper *async.Looper, done chan struct{}) {
		defer close(done)
		looper.Loop(context.Background())
	}(s.looper, s.loopDone)

	s.wg.Add(1)
	go s.processQueue()

	s.cron = cron.New()
	if spec := s.cfg.Queue.CleanupCron; spec != "" {
		if _, err := s.cron.AddFunc(spec, s.CleanupOldJobs); err != nil {
			s.log.Warnf("清理任务 cron 表达式无效 %q: %v", spec, err)
		}
	}
	s.cron.Start()

	s.isRunning = true
	s.log.Infof("压缩任务队列已启动，最大并发数: %d", cap(s.workers))
}

// Stop 停止任务处理器，正在执行的任务会被取消并重新排队
func (s *JobQueueService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	s.log.Info("正在停止压缩任务队列...")
	s.cancel()
	s.wg.Wait()

	s.looper.Quit()
	<-s.loopDone

	<-s.cron.Stop().Done()

	s.isRunning = false
	s.log.Info("压缩任务队列已停止")
}

// IsRunning 是否正在运行
func (s *JobQueueService) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// processQueue 定期检查待处理任务
func (s *JobQueueService) processQueue() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Queue.PollInterval)
	defer ticker.Stop()

	s.processPendingTasks()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.processPendingTasks()
		case <-s.wake:
			s.processPendingTasks()
		}
	}
}

// processPendingTasks 按创建时间领取待处理任务，直到没有空闲槽位
func (s *JobQueueService) processPendingTasks() {
	free := cap(s.workers) - len(s.workers)
	if free <= 0 || s.ctx.Err() != nil {
		return
	}

	var jobs []model.CompressJob
	if err := s.db.Where("status = ?", model.JobStatusPending).
		Order("created_at ASC, id ASC").
		Limit(free).
		Find(&jobs).Error; err != nil {
		s.log.Errorf("获取待处理任务失败: %v", err)
		return
	}

	for i := range jobs {
		job := jobs[i]

		select {
		case s.workers <- struct{}{}:
		default:
			return
		}

		claimed, err := s.claim(&job)
		if err != nil || !claimed {
			if err != nil {
				s.log.Errorf("领取任务失败: UID=%s, %v", job.UID, err)
			}
			<-s.workers
			continue
		}

		s.wg.Add(1)
		go s.runJob(&job)
	}
}

// claim 把任务从 pending 改为 processing，已被取消或领取时返回 false
func (s *JobQueueService) claim(job *model.CompressJob) (bool, error) {
	job.SetProcessing()
	result := s.db.Model(&model.CompressJob{}).
		Where("id = ? AND status = ?", job.ID, model.JobStatusPending).
		Updates(map[string]any{
			"status":     job.Status,
			"started_at": job.StartedAt,
			"progress":   0,
		})
	return result.RowsAffected == 1, result.Error
}

// runJob 执行单个任务
func (s *JobQueueService) runJob(job *model.CompressJob) {
	defer func() {
		s.unregister(job.ID)
		<-s.workers // 释放工作者槽位
		s.wg.Done()
	}()

	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	s.log.Infof("开始压缩任务: UID=%s, Input=%s, 重试次数: %d/%d", job.UID, job.Input, job.RetryCount, job.MaxRetryCount)

	opts, err := s.prepare(job)
	if err != nil {
		if s.ctx.Err() != nil {
			job.Requeue()
			s.save(job)
			return
		}
		s.log.Errorf("任务参数准备失败: UID=%s, %v", job.UID, err)
		job.SetFailed(err)
		s.save(job)
		s.afterJob(job)
		return
	}

	job.Width, job.Height, job.Bitrate, job.FPS = opts.Width(), opts.Height(), opts.Bitrate(), opts.FPS()
	s.save(job)

	task := s.compressor.Compress(opts, s.callbacks(job),
		async.WithLooper(s.looper),
		async.WithName(job.UID))

	if !s.register(job.ID, task) {
		task.Cancel()
	}

	if err := task.Start(s.ctx); err != nil {
		s.log.Errorf("启动压缩任务失败: UID=%s, %v", job.UID, err)
		return
	}
	<-task.Done()

	s.afterJob(job)
}

func (s *JobQueueService) prepare(job *model.CompressJob) (*options.CompressOptions, error) {
	src, err := media.NewSource(s.ctx, s.inspector, job.Input)
	if err != nil {
		metrics.ProbeTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.ProbeTotal.WithLabelValues("ok").Inc()

	policy, err := options.ParsePolicy(job.Policy)
	if err != nil {
		return nil, err
	}
	return options.Apply(policy, src, job.Output, s.cfg.Compress.PolicyConfig())
}

// callbacks 任务回调，均在 s.looper 上执行
func (s *JobQueueService) callbacks(job *model.CompressJob) async.Callbacks[compressor.Result] {
	return async.Callbacks[compressor.Result]{
		OnProgress: func(percent int) {
			job.Progress = percent
			if err := s.db.Model(&model.CompressJob{}).Where("id = ?", job.ID).Update("progress", percent).Error; err != nil {
				s.log.Warnf("更新任务进度失败: UID=%s, %v", job.UID, err)
			}
		},
		OnSuccess: func(result compressor.Result) {
			if result.Success {
				job.SetCompleted(result.Size, result.Elapsed)
				s.log.Infof("✅ 压缩任务完成: UID=%s, 输出: %s, 大小: %d, 耗时: %v", job.UID, result.Output, result.Size, result.Elapsed)
			} else {
				job.ElapsedMillis = result.ElapsedMillis()
				job.SetRetryableError(errOutputMissing)
				s.log.Warnf("❌ 压缩任务输出无效: UID=%s, 重试次数: %d/%d", job.UID, job.RetryCount, job.MaxRetryCount)
			}
			s.save(job)
		},
		OnError: func(err error) {
			if errors.Is(err, compressor.ErrEngineFailure) {
				job.SetRetryableError(err)
			} else {
				job.SetFailed(err)
			}
			s.log.Warnf("❌ 压缩任务失败: UID=%s, 状态: %s, 重试次数: %d/%d, 错误: %v",
				job.UID, job.Status, job.RetryCount, job.MaxRetryCount, err)
			s.save(job)
		},
		OnCancel: func() {
			if s.ctx.Err() != nil {
				job.Requeue()
				s.log.Infof("服务关闭，任务重新排队: UID=%s", job.UID)
			} else {
				job.SetCancelled()
				s.log.Infof("压缩任务已取消: UID=%s", job.UID)
			}
			s.save(job)
		},
	}
}

// afterJob 任务结束后的封面、指标和通知
func (s *JobQueueService) afterJob(job *model.CompressJob) {
	elapsed := time.Duration(job.ElapsedMillis) * time.Millisecond

	switch job.Status {
	case model.JobStatusCompleted:
		metrics.OutputBytes.Add(float64(job.OutputSize))
		s.makePoster(job)
	case model.JobStatusPending:
		metrics.ObserveJob("retry", job.Policy, elapsed)
		return
	}
	metrics.ObserveJob(string(job.Status), job.Policy, elapsed)

	if s.notifier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.notifier.NotifyJob(ctx, job); err != nil {
			s.log.Warnf("任务通知失败: UID=%s, %v", job.UID, err)
		}
	}
}

func (s *JobQueueService) makePoster(job *model.CompressJob) {
	if s.poster == nil || !s.cfg.Compress.Poster {
		return
	}

	poster := utils.ReplaceExt(job.Output, ".jpg")
	if err := s.poster.Generate(s.ctx, job.Output, poster, time.Second); err != nil {
		s.log.Warnf("生成封面失败: UID=%s, %v", job.UID, err)
		return
	}

	job.PosterPath = poster
	s.save(job)
}

func (s *JobQueueService) save(job *model.CompressJob) {
	if err := s.db.Save(job).Error; err != nil {
		s.log.Errorf("保存任务状态失败: UID=%s, %v", job.UID, err)
	}
}

func (s *JobQueueService) register(id uint, task *compressTask) bool {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()

	s.tasks[id] = task
	if s.cancelRequested[id] {
		delete(s.cancelRequested, id)
		return false
	}
	return true
}

func (s *JobQueueService) unregister(id uint) {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	delete(s.tasks, id)
	delete(s.cancelRequested, id)
}

// CancelJob 取消任务，等待中的任务直接标记为取消，执行中的任务请求取消
func (s *JobQueueService) CancelJob(uid string) (*model.CompressJob, error) {
	job, err := s.GetJob(uid)
	if err != nil {
		return nil, err
	}

	if job.Status == model.JobStatusPending {
		now := time.Now()
		result := s.db.Model(&model.CompressJob{}).
			Where("id = ? AND status = ?", job.ID, model.JobStatusPending).
			Updates(map[string]any{"status": model.JobStatusCancelled, "completed_at": now})
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 1 {
			metrics.ObserveJob(string(model.JobStatusCancelled), job.Policy, 0)
			s.log.Infof("等待中的任务已取消: UID=%s", uid)
			return s.GetJob(uid)
		}
		// 刚被领取，按执行中处理
		job.Status = model.JobStatusProcessing
	}

	if job.Status != model.JobStatusProcessing {
		return job, ErrJobFinished
	}

	s.tasksMu.Lock()
	task := s.tasks[job.ID]
	if task == nil {
		s.cancelRequested[job.ID] = true
	}
	s.tasksMu.Unlock()

	if task != nil {
		task.Cancel()
	}
	s.log.Infof("已请求取消任务: UID=%s", uid)
	return job, nil
}

// GetJob 按 UID 获取任务
func (s *JobQueueService) GetJob(uid string) (*model.CompressJob, error) {
	var job model.CompressJob
	if err := s.db.Where("uid = ?", uid).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// ListJobs 分页获取任务列表，status 为空时返回全部
func (s *JobQueueService) ListJobs(status string, limit, offset int) ([]model.CompressJob, int64, error) {
	var jobs []model.CompressJob
	var total int64

	query := func() *gorm.DB {
		q := s.db.Model(&model.CompressJob{})
		if status != "" {
			q = q.Where("status = ?", status)
		}
		return q
	}

	if err := query().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query().Order("created_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&jobs).Error; err != nil {
		return nil, 0, err
	}

	return jobs, total, nil
}

// GetQueueStatus 获取各状态的任务数量
func (s *JobQueueService) GetQueueStatus() (map[string]int64, error) {
	status := make(map[string]int64)

	for _, st := range []model.JobStatus{
		model.JobStatusPending,
		model.JobStatusProcessing,
		model.JobStatusCompleted,
		model.JobStatusFailed,
		model.JobStatusCancelled,
	} {
		var count int64
		if err := s.db.Model(&model.CompressJob{}).Where("status = ?", st).Count(&count).Error; err != nil {
			return nil, err
		}
		status[string(st)] = count
	}
	status["running"] = int64(len(s.workers))

	return status, nil
}

// CleanupOldJobs 清理过期的已结束任务
func (s *JobQueueService) CleanupOldJobs() {
	now := time.Now()
	rules := []struct {
		statuses []model.JobStatus
		days     int
	}{
		{[]model.JobStatus{model.JobStatusCompleted, model.JobStatusCancelled}, s.cfg.Queue.KeepCompletedDays},
		{[]model.JobStatus{model.JobStatusFailed}, s.cfg.Queue.KeepFailedDays},
	}

	for _, rule := range rules {
		if rule.days <= 0 {
			continue
		}
		cutoff := now.AddDate(0, 0, -rule.days)
		result := s.db.Where("status IN ? AND completed_at < ?", rule.statuses, cutoff).Delete(&model.CompressJob{})
		if result.Error != nil {
			s.log.Errorf("清理任务失败: %v", result.Error)
			continue
		}
		if result.RowsAffected > 0 {
			s.log.Infof("清理了 %d 个 %v 任务（超过 %d 天）", result.RowsAffected, rule.statuses, rule.days)
		}
	}
}
