package main

import (
	"context"

	"tablequery/internal/metadata"
	"tablequery/pkg/logger"
)

// setupMetadata loads the schema file into a registry. With watch enabled the
// file is reloaded on change; a broken edit keeps the last good definitions.
func setupMetadata(ctx context.Context, log *logger.Logger, path string, watch bool) (*metadata.Registry, *metadata.Watcher, error) {
	if !watch {
		reg, err := metadata.LoadRegistry(path)
		if err != nil {
			return nil, nil, err
		}
		log.Infow("metadata registry initialized", "path", path, "tables", len(reg.List()))
		return reg, nil, nil
	}

	reg := metadata.NewRegistry()
	watcher := metadata.NewWatcher(path, reg)
	watcher.OnReload(func(tables []metadata.TableDef, err error) {
		if err != nil {
			log.Warnw("schema reload rejected, keeping previous definitions", "path", path, "error", err)
			return
		}
		names := make([]string, len(tables))
		for i, t := range tables {
			names[i] = t.Name
		}
		log.Infow("metadata registry updated", "tables", names)
	})

	if err := watcher.Start(ctx); err != nil {
		return nil, nil, err
	}
	return reg, watcher, nil
}
