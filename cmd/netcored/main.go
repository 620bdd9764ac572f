// Command netcored is the core runtime's daemon entrypoint: a cobra CLI
// exposing serve, gen-config, and version subcommands over the same
// netconfig -> netlog -> hub -> dispatcher -> netframe wiring regardless of
// which subcommand runs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "netcored",
		Short: "Framed-packet dispatch daemon",
	}

	var configPath string
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to configuration file")

	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(genConfigCmd(&configPath))
	root.AddCommand(versionCmd())

	return root
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/netcored/config.yaml"
	}
	return home + "/.netcored/config.yaml"
}

func printBanner() {
	fmt.Println("=======================================")
	fmt.Println(" netcored v" + version)
	fmt.Println(" framed-packet dispatch daemon")
	fmt.Println("=======================================")
}
