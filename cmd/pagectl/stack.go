package main

import (
	"pageengine/storage/bufmgr"
	"pageengine/storage/walio"
)

// openStack wires a buffer manager and WAL writer from the loaded config,
// the same pair every access method in this module registers its page
// mutations through.
func openStack() (*bufmgr.Manager, *walio.Writer, error) {
	mgr := bufmgr.New(cfg.BufferCache.Capacity)
	wal, err := walio.New(walio.Config{
		LogsDir:   cfg.WAL.LogsDir,
		BlockSize: cfg.WAL.BlockSize,
		LogSize:   cfg.WAL.LogSize,
	})
	if err != nil {
		return nil, nil, err
	}
	return mgr, wal, nil
}
