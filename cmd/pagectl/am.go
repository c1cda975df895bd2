package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pageengine/access/amregistry"
)

// bloomHandler is the only access method this binary ships a constructor
// for; amregistry.Registry is built to hold more without changing its own
// code, the same way pg_am can list handlers this binary never registers.
func bloomHandler() amregistry.Routine {
	return amregistry.Routine{
		Name:          "bloom",
		CanOrder:      false,
		CanUnique:     false,
		CanMultiCol:   true,
		AmOptionalKey: true,
	}
}

func openAMRegistry() (*amregistry.Registry, error) {
	reg, err := amregistry.Open(cfg.AMRegistry.CatalogPath)
	if err != nil {
		return nil, err
	}
	reg.RegisterHandler("bloom", bloomHandler)
	return reg, nil
}

func newAMCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "am",
		Short: "manage the access method catalog",
	}
	cmd.AddCommand(newAMCreateCmd())
	cmd.AddCommand(newAMRemoveCmd())
	cmd.AddCommand(newAMListCmd())
	return cmd
}

func newAMCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name> <handler>",
		Short: "register a new access method, e.g. `am create myidx bloom`",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openAMRegistry()
			if err != nil {
				return err
			}
			defer reg.Close()

			id, err := reg.Create(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("created access method %s (%s) id=%s\n", args[0], args[1], id)
			return nil
		},
	}
}

func newAMRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "drop an access method from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openAMRegistry()
			if err != nil {
				return err
			}
			defer reg.Close()

			if err := reg.Remove(args[0]); err != nil {
				return err
			}
			fmt.Printf("removed access method %s\n", args[0])
			return nil
		},
	}
}

func newAMListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list registered access methods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openAMRegistry()
			if err != nil {
				return err
			}
			defer reg.Close()

			names, err := reg.List()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
}
