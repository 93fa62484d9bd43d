package library

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"AuraFM/logger"
)

// 大文件写入需要时间，落盘后稳定这么久才算写完
const fileSettleDelay = 2 * time.Second

// Registry 监听器需要的注册表操作子集
type Registry interface {
	// RemoveByLocation 按存储位置删除曲库记录，返回是否真的删了
	RemoveByLocation(ctx context.Context, location string) (bool, error)
}

// Watcher 监听本地下载目录，文件在服务之外被删除时同步清掉曲库记录
type Watcher struct {
	dir      string
	registry Registry
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher 创建下载目录监听器
func NewWatcher(dir string, registry Registry) *Watcher {
	return &Watcher{dir: dir, registry: registry}
}

// Start 开始监听，目录不存在时先创建
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create download dir %s: %w", w.dir, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.watcher = fw
	w.done = make(chan struct{})
	go w.loop(ctx)

	logger.Info("下载目录监听已启动", logger.String("dir", w.dir))
	return nil
}

// Stop 停止监听并等监听协程退出
func (w *Watcher) Stop() {
	if w.watcher == nil {
		return
	}
	w.watcher.Close()
	<-w.done
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	// 新文件先进延迟队列，稳定后才上报，避免把写到一半的文件当成完整文件
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			switch {
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(pending, event.Name)
				w.handleRemoved(ctx, event.Name)
			case event.Op&fsnotify.Create != 0:
				pending[event.Name] = time.Now()
			case event.Op&fsnotify.Write != 0:
				if _, tracked := pending[event.Name]; tracked {
					pending[event.Name] = time.Now()
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("文件监听错误", logger.ErrorField(err))

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < fileSettleDelay {
					continue
				}
				delete(pending, path)
				// 不是本服务写入的文件，只记日志不入库
				logger.Debug("下载目录出现新文件", logger.String("path", path))
			}
		}
	}
}

func (w *Watcher) handleRemoved(ctx context.Context, path string) {
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	removed, err := w.registry.RemoveByLocation(opCtx, path)
	if err != nil {
		logger.Warn("同步删除曲库记录失败",
			logger.String("path", path),
			logger.ErrorField(err))
		return
	}
	if removed {
		logger.Info("文件被删除，曲库记录已同步移除", logger.String("path", path))
	}
}
