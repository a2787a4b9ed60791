package serving

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"evrange/ml"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDelay = 250 * time.Millisecond

// Watch reloads the artifact whenever it is replaced on disk, e.g. by
// `evctl train` running next to the server. It stops when ctx is done or the
// service is closed.
func (s *ModelService) Watch(ctx context.Context) error {
	dir := filepath.Dir(s.config.ModelPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	s.watchMu.Lock()
	if s.watcher != nil {
		s.watchMu.Unlock()
		watcher.Close()
		return errors.New("already watching")
	}
	s.watcher = watcher
	s.watchMu.Unlock()

	go s.watchLoop(ctx, watcher)
	s.logger.Info("watching model artifact", zap.String("path", s.config.ModelPath))
	return nil
}

func (s *ModelService) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	name := filepath.Clean(s.config.ModelPath)
	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				timer.Reset(reloadDelay)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("artifact watcher error", zap.Error(err))
		case <-timer.C:
			s.reloadIfChanged()
		}
	}
}

func (s *ModelService) reloadIfChanged() {
	pipeline, err := ml.LoadPipeline(s.config.ModelPath)
	if err != nil {
		s.logger.Warn("artifact reload failed", zap.Error(err))
		return
	}
	if current := s.current(); current != nil && current.Version == pipeline.Version {
		return
	}
	s.swap(pipeline)
	s.logger.Info("model reloaded from disk", zap.String("version", pipeline.Version))
}
