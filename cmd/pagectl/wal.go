package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pageengine/resourcemgr"
	"pageengine/storage/bufmgr"
	"pageengine/storage/redo"
)

func newWALCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wal",
		Short: "inspect and replay the write-ahead log",
	}
	cmd.AddCommand(newWALReplayCmd())
	return cmd
}

func newWALReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "replay every WAL record through the registered resource managers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := bufmgr.New(cfg.BufferCache.Capacity)
			registry := resourcemgr.NewDefaultRegistry()
			reader := redo.NewReader(cfg.WAL.LogsDir, cfg.WAL.BlockSize)

			lsn, err := reader.Replay(mgr, registry)
			if err != nil {
				return err
			}
			fmt.Printf("replay complete, last LSN %d\n", lsn)
			return nil
		},
	}
}
