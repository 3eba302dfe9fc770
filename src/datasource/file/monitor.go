// monitor.go
package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileMonitor 监控数据目录, 文件被写入/创建/重命名时回调
type FileMonitor struct {
	watchDir string
	watcher  *fsnotify.Watcher
	lastMod  map[string]time.Time
	mu       sync.Mutex
}

func NewFileMonitor(dir string) (*FileMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	return &FileMonitor{
		watchDir: dir,
		watcher:  watcher,
		lastMod:  make(map[string]time.Time),
	}, nil
}

// Watch 阻塞直到ctx取消或监控出错
// handler 收到的是文件的绝对路径; 删除/重命名走 handler 时文件可能已不存在
func (m *FileMonitor) Watch(ctx context.Context, handler func(string)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if m.changed(event) {
				name, _ := filepath.Abs(event.Name)
				go handler(name)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

// changed 同一修改时间的重复写事件只报告一次
func (m *FileMonitor) changed(event fsnotify.Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, err := os.Stat(event.Name)
	if err != nil {
		// 文件已移走
		delete(m.lastMod, event.Name)
		return true
	}
	if info.IsDir() {
		return false
	}
	if last, ok := m.lastMod[event.Name]; ok && !info.ModTime().After(last) {
		return false
	}
	m.lastMod[event.Name] = info.ModTime()
	return true
}

// Close 停止监控
func (m *FileMonitor) Close() error {
	return m.watcher.Close()
}
