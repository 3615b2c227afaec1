package filewatcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"vcompressor/app/config"
	"vcompressor/app/logger"
	"vcompressor/app/model"
	"vcompressor/app/service"
	"vcompressor/app/utils"
)

// Enqueuer 接收监控到的视频文件
type Enqueuer interface {
	Enqueue(req service.EnqueueRequest) (*model.CompressJob, error)
}

// FileWatcherManager 文件监控管理器，管理多个监控实例
type FileWatcherManager struct {
	watchers []*FileWatcher
	logger   *logger.Logger
	mu       sync.RWMutex
}

// NewFileWatcherManager 创建新的文件监控管理器，未启用时返回 nil
func NewFileWatcherManager(configs config.WatcherConfig, queue Enqueuer, log *logger.Logger) (*FileWatcherManager, error) {
	if !configs.Enabled {
		return nil, nil
	}

	if len(configs.Configs) == 0 {
		return nil, fmt.Errorf("文件监控已启用但没有配置任何监控项")
	}

	manager := &FileWatcherManager{
		logger:   log,
		watchers: make([]*FileWatcher, 0, len(configs.Configs)),
	}

	for i, cfg := range configs.Configs {
		watcher, err := NewFileWatcher(cfg, queue, log)
		if err != nil {
			manager.stopAll()
			return nil, fmt.Errorf("创建第%d个文件监控器失败: %w", i+1, err)
		}
		manager.watchers = append(manager.watchers, watcher)
	}

	return manager, nil
}

// Start 启动所有文件监控器
func (m *FileWatcherManager) Start() error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, watcher := range m.watchers {
		if err := watcher.Start(); err != nil {
			for j := 0; j < i; j++ {
				m.watchers[j].Stop()
			}
			return fmt.Errorf("启动第%d个文件监控器失败: %w", i+1, err)
		}
	}

	m.logger.Infof("文件监控管理器已启动，共启动了 %d 个监控实例", len(m.watchers))
	return nil
}

// Stop 停止所有文件监控器
func (m *FileWatcherManager) Stop() error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.stopAll()
}

// stopAll 停止所有监控器（内部方法，不加锁）
func (m *FileWatcherManager) stopAll() error {
	var errors []error

	for i, watcher := range m.watchers {
		if err := watcher.Stop(); err != nil {
			errors = append(errors, fmt.Errorf("停止第%d个文件监控器失败: %w", i+1, err))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("停止文件监控器时出现错误: %v", errors)
	}

	m.logger.Info("文件监控管理器已停止")
	return nil
}

// GetWatcherCount 获取监控器数量
func (m *FileWatcherManager) GetWatcherCount() int {
	if m == nil {
		return 0
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.watchers)
}

// FileWatcher 单个目录的监控器，新视频写入完成后加入压缩队列
type FileWatcher struct {
	config  config.WatchConfig
	queue   Enqueuer
	watcher *fsnotify.Watcher
	logger  *logger.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup

	watching bool
	mu       sync.RWMutex

	// 文件就绪检测
	readyInterval time.Duration
	readyTimeout  time.Duration
	// 启动后延迟扫描已存在的文件
	scanDelay time.Duration
}

// NewFileWatcher 创建新的文件监控器
func NewFileWatcher(cfg config.WatchConfig, queue Enqueuer, log *logger.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监控器失败: %w", err)
	}

	if cfg.Name == "" {
		cfg.Name = filepath.Base(cfg.SourceDir)
	}

	return &FileWatcher{
		config:        cfg,
		queue:         queue,
		watcher:       watcher,
		logger:        log,
		stopCh:        make(chan struct{}),
		readyInterval: 500 * time.Millisecond,
		readyTimeout:  30 * time.Second,
		scanDelay:     time.Second,
	}, nil
}

// Start 启动文件监控
func (fw *FileWatcher) Start() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.watching {
		return fmt.Errorf("文件监控器[%s]已经在运行", fw.config.Name)
	}

	if _, err := os.Stat(fw.config.SourceDir); os.IsNotExist(err) {
		return fmt.Errorf("监控源目录不存在: %s", fw.config.SourceDir)
	}

	if err := os.MkdirAll(fw.config.TargetDir, 0755); err != nil {
		return fmt.Errorf("创建目标目录失败: %w", err)
	}

	if err := fw.addWatchPaths(); err != nil {
		return fmt.Errorf("添加监控路径失败: %w", err)
	}

	fw.watching = true
	fw.wg.Add(1)

	go fw.watchLoop()

	fw.logger.Infof("文件监控器[%s]已启动，监控目录: %s -> %s", fw.config.Name, fw.config.SourceDir, fw.config.TargetDir)

	if fw.config.ProcessExistingFiles {
		fw.wg.Add(1)
		go func() {
			defer fw.wg.Done()
			// 等待监控器完全就绪
			select {
			case <-time.After(fw.scanDelay):
			case <-fw.stopCh:
				return
			}
			fw.logger.Infof("监控器[%s]开始初始扫描已存在的文件", fw.config.Name)
			fw.scanDir(fw.config.SourceDir)
		}()
	} else {
		fw.logger.Infof("监控器[%s]跳过已存在文件（配置已禁用）", fw.config.Name)
	}

	return nil
}

// Stop 停止文件监控
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if !fw.watching {
		fw.watcher.Close()
		return nil
	}

	close(fw.stopCh)
	fw.watcher.Close()
	fw.wg.Wait()
	fw.watching = false

	fw.logger.Infof("文件监控器[%s]已停止", fw.config.Name)
	return nil
}

// addWatchPaths 添加监控路径
func (fw *FileWatcher) addWatchPaths() error {
	if err := fw.watcher.Add(fw.config.SourceDir); err != nil {
		return fmt.Errorf("添加根监控目录失败: %w", err)
	}

	if !fw.config.Recursive {
		return nil
	}

	err := filepath.Walk(fw.config.SourceDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && path != fw.config.SourceDir && !fw.isInsideTarget(path) {
			if err := fw.watcher.Add(path); err != nil {
				fw.logger.Warnf("添加子目录监控失败: %s, 错误: %v", path, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("递归添加监控目录失败: %w", err)
	}
	return nil
}

// watchLoop 监控事件循环
func (fw *FileWatcher) watchLoop() {
	defer fw.wg.Done()

	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Errorf("文件监控器[%s]错误: %v", fw.config.Name, err)

		case <-fw.stopCh:
			return
		}
	}
}

// handleEvent 处理文件系统事件
func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		fw.logger.Warnf("获取文件信息失败: %s, 错误: %v", event.Name, err)
		return
	}

	if info.IsDir() {
		if !fw.config.Recursive || fw.isInsideTarget(event.Name) {
			return
		}
		if err := fw.watcher.Add(event.Name); err != nil {
			fw.logger.Warnf("添加新目录监控失败: %s, 错误: %v", event.Name, err)
			return
		}
		fw.logger.Debugf("监控器[%s]添加新目录监控: %s", fw.config.Name, event.Name)
		// 目录可能在添加监控前就已写入文件
		fw.wg.Add(1)
		go func() {
			defer fw.wg.Done()
			fw.scanDir(event.Name)
		}()
		return
	}

	if !fw.shouldProcessFile(event.Name) {
		return
	}

	// 拷贝大文件时会持续写入，等大小稳定后再处理
	fw.wg.Add(1)
	go func() {
		defer fw.wg.Done()
		if err := fw.waitForFileReady(event.Name); err != nil {
			fw.logger.Warnf("等待文件就绪失败: %s, 错误: %v", event.Name, err)
			return
		}
		if err := fw.processFile(event.Name); err != nil {
			fw.logger.Errorf("监控器[%s]处理文件失败: %s, 错误: %v", fw.config.Name, event.Name, err)
		}
	}()
}

// scanDir 处理目录中已存在的文件
func (fw *FileWatcher) scanDir(dirPath string) {
	var processedCount, skippedCount, errorCount int

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		select {
		case <-fw.stopCh:
			return filepath.SkipAll
		default:
		}

		if err != nil {
			fw.logger.Warnf("监控器[%s]遍历目录失败: %s, 错误: %v", fw.config.Name, path, err)
			errorCount++
			return nil
		}

		if info.IsDir() {
			if path != dirPath && (!fw.config.Recursive || fw.isInsideTarget(path)) {
				return filepath.SkipDir
			}
			return nil
		}

		if !fw.shouldProcessFile(path) {
			skippedCount++
			return nil
		}

		if fw.isFileAlreadyProcessed(path) {
			fw.logger.Debugf("监控器[%s]目标文件已存在，跳过: %s", fw.config.Name, path)
			skippedCount++
			return nil
		}

		if err := fw.waitForFileReady(path); err != nil {
			fw.logger.Warnf("监控器[%s]等待文件就绪失败: %s, 错误: %v", fw.config.Name, path, err)
			errorCount++
			return nil
		}

		if err := fw.processFile(path); err != nil {
			fw.logger.Errorf("监控器[%s]处理已存在文件失败: %s, 错误: %v", fw.config.Name, path, err)
			errorCount++
		} else {
			processedCount++
		}
		return nil
	})

	if err != nil {
		fw.logger.Errorf("监控器[%s]遍历目录失败: %s, 错误: %v", fw.config.Name, dirPath, err)
		return
	}
	fw.logger.Infof("监控器[%s]完成检查目录: %s，添加了 %d 个任务，跳过 %d 个文件，%d 个错误",
		fw.config.Name, dirPath, processedCount, skippedCount, errorCount)
}

// targetPath 计算源文件对应的压缩输出路径，保持相对目录结构
func (fw *FileWatcher) targetPath(sourcePath string) (string, error) {
	relPath, err := filepath.Rel(fw.config.SourceDir, sourcePath)
	if err != nil {
		return "", fmt.Errorf("计算相对路径失败: %w", err)
	}
	return utils.ReplaceExt(filepath.Join(fw.config.TargetDir, relPath), ".mp4"), nil
}

// isFileAlreadyProcessed 目标位置已有非空输出时视为已处理
func (fw *FileWatcher) isFileAlreadyProcessed(sourcePath string) bool {
	target, err := fw.targetPath(sourcePath)
	if err != nil {
		return false
	}
	size, ok := utils.FileSize(target)
	return ok && size > 0
}

// isInsideTarget 目标目录位于源目录内部时，不能监控自己的输出
func (fw *FileWatcher) isInsideTarget(path string) bool {
	return utils.IsSubPath(path, fw.config.TargetDir)
}

// shouldProcessFile 检查是否应该处理此文件
func (fw *FileWatcher) shouldProcessFile(filePath string) bool {
	if fw.isInsideTarget(filePath) {
		return false
	}
	return utils.HasExtension(filePath, fw.config.Extensions)
}

// waitForFileReady 等待文件写入完成
func (fw *FileWatcher) waitForFileReady(filePath string) error {
	timeout := time.After(fw.readyTimeout)
	ticker := time.NewTicker(fw.readyInterval)
	defer ticker.Stop()

	var lastSize int64 = -1

	for {
		select {
		case <-timeout:
			return fmt.Errorf("等待文件就绪超时: %s", filePath)
		case <-fw.stopCh:
			return fmt.Errorf("监控器已停止")
		case <-ticker.C:
			info, err := os.Stat(filePath)
			if err != nil {
				return fmt.Errorf("获取文件信息失败: %w", err)
			}

			currentSize := info.Size()
			if currentSize == lastSize && currentSize > 0 {
				return nil
			}
			lastSize = currentSize
		}
	}
}

// processFile 把文件加入压缩队列
func (fw *FileWatcher) processFile(sourcePath string) error {
	target, err := fw.targetPath(sourcePath)
	if err != nil {
		return err
	}

	job, err := fw.queue.Enqueue(service.EnqueueRequest{
		Input:  sourcePath,
		Output: target,
		Policy: fw.config.Policy,
		Origin: model.JobOriginWatcher,
	})
	if err != nil {
		return fmt.Errorf("添加压缩任务失败: %w", err)
	}

	fw.logger.Infof("监控器[%s]已添加压缩任务: %s -> %s, UID=%s", fw.config.Name, sourcePath, target, job.UID)
	return nil
}
