package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

/*
Watcher 配置文件监听器
功能：监听配置文件所在目录，文件被写入或替换后重新解析，并把新配置交给回调。
解析失败时保留旧配置，只记录警告。
*/
type Watcher struct {
	path     string
	onChange func(*Config)
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	stopOnce sync.Once
	done     chan struct{}
}

/*
WatchFile 开始监听配置文件
功能：编辑器常以“写临时文件再 rename”的方式保存，因此监听目录而非文件本身；
250ms 内的连续事件合并为一次重载。
*/
func WatchFile(path string, onChange func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     abs,
		onChange: onChange,
		watcher:  fw,
		logger:   zap.L().Named("config-watch"),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	var debounce *time.Timer
	for {
		select {
		case <-w.done:
			if debounce != nil {
				debounce.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("配置监听出错", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.Warn("配置重载失败，保留当前配置", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("✓ 配置文件已重新加载", zap.String("path", w.path))
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

/* Stop 停止监听 */
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}
