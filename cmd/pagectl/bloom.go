package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pageengine/access/bloom"
)

func newBloomCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bloom",
		Short: "create, populate, and scan a bloom signature index",
	}
	cmd.AddCommand(newBloomCreateCmd())
	cmd.AddCommand(newBloomInsertCmd())
	cmd.AddCommand(newBloomScanCmd())
	return cmd
}

func newBloomCreateCmd() *cobra.Command {
	var columns int
	c := &cobra.Command{
		Use:   "create <path>",
		Short: "create an empty bloom index file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, wal, err := openStack()
			if err != nil {
				return err
			}
			defer wal.Close()

			opts := bloom.DefaultOptions(columns)
			if columns <= 0 {
				opts = bloom.DefaultOptions(1)
			}
			if _, err := bloom.Create(args[0], mgr, wal, opts); err != nil {
				return err
			}
			fmt.Printf("created bloom index %s with %d columns\n", args[0], len(opts.BitsPerColumn))
			return nil
		},
	}
	c.Flags().IntVar(&columns, "columns", 1, "number of indexed columns")
	return c
}

func newBloomInsertCmd() *cobra.Command {
	var block uint64
	var offset uint16
	c := &cobra.Command{
		Use:   "insert <path> <value>[,<value>...]",
		Short: "sign and insert one row's column values",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, wal, err := openStack()
			if err != nil {
				return err
			}
			defer wal.Close()

			idx := bloom.Open(args[0], mgr, wal)
			values := splitValues(args[1])
			id := bloom.TupleID{BlockIndex: block, Offset: offset}
			if err := idx.Insert(id, values); err != nil {
				return err
			}
			fmt.Printf("inserted tuple %d:%d\n", block, offset)
			return nil
		},
	}
	c.Flags().Uint64Var(&block, "block", 0, "tuple's heap block index")
	c.Flags().Uint16Var(&offset, "offset", 0, "tuple's heap item offset")
	return c
}

func newBloomScanCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "scan <path> <value>[,<value>...]",
		Short: "list tuples whose signature is a possible match for the query",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, wal, err := openStack()
			if err != nil {
				return err
			}
			defer wal.Close()

			idx := bloom.Open(args[0], mgr, wal)
			matches, err := idx.Scan(splitValues(args[1]))
			if err != nil {
				return err
			}
			for _, m := range matches {
				fmt.Printf("%d:%d\n", m.BlockIndex, m.Offset)
			}
			fmt.Printf("%d possible match(es)\n", len(matches))
			return nil
		},
	}
	return c
}

// splitValues turns a "v1,v2,,v4" command-line argument into column values,
// treating an empty field as an unindexed (nil) column.
func splitValues(raw string) [][]byte {
	parts := strings.Split(raw, ",")
	values := make([][]byte, len(parts))
	for i, p := range parts {
		if p == "" {
			continue
		}
		values[i] = []byte(p)
	}
	return values
}
