package engine

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/docpull/docpull/internal/watcher"
)

// Watch re-ingests files under dir as they change and removes deleted
// documents. It blocks until the context is cancelled.
func (e *Engine) Watch(ctx context.Context, dir string) error {
	debounce, err := time.ParseDuration(e.cfg.Watch.Debounce)
	if err != nil {
		debounce = 500 * time.Millisecond
	}

	w, err := watcher.New(watcher.Options{
		DebounceWindow: debounce,
		IgnoreDirs:     []string{filepath.Base(e.dataDir)},
	})
	if err != nil {
		return err
	}

	go e.consumeEvents(ctx, w)
	e.logger.Info("watch mode started", slog.String("dir", dir))
	return w.Start(ctx, dir)
}

func (e *Engine) consumeEvents(ctx context.Context, w *watcher.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-w.Events():
			if !ok {
				return
			}
			for _, event := range batch {
				e.handleWatchEvent(ctx, event)
			}
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			e.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

func (e *Engine) handleWatchEvent(ctx context.Context, event watcher.FileEvent) {
	if event.IsDir {
		return
	}

	switch event.Operation {
	case watcher.OpCreate, watcher.OpModify:
		stats, err := e.coordinator.IngestPath(ctx, event.Path, nil)
		if err != nil {
			e.logger.Warn("watch re-ingest failed",
				slog.String("path", event.Path),
				slog.String("error", err.Error()))
			return
		}
		e.logger.Debug("watch re-ingest",
			slog.String("path", event.Path),
			slog.Int("new_chunks", stats.NewChunks),
			slog.Int("skipped_chunks", stats.SkippedChunks))

	case watcher.OpDelete, watcher.OpRename:
		doc, found, err := e.catalog.GetDocumentBySource(ctx, event.Path)
		if err != nil {
			e.logger.Warn("watch lookup failed",
				slog.String("path", event.Path),
				slog.String("error", err.Error()))
			return
		}
		if !found {
			return
		}
		if err := e.coordinator.RemoveDocument(ctx, doc.ID); err != nil {
			e.logger.Warn("watch removal failed",
				slog.String("path", event.Path),
				slog.String("error", err.Error()))
		}
	}
}
