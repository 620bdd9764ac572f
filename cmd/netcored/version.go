package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the daemon version and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("netcored v%s\n", version)
			return nil
		},
	}
}
