package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Version information (set during build)
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

const defaultConfigPath = "config/application.yaml"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "poolstore",
		Short: "Pooled write-back buffer in front of a relational database",
		Long: `poolstore buffers row mutations in a bounded set of Redis-backed pools and
flushes each pool to the database in a single transaction once it fills up.
Mutations arrive from Kafka; failed batches stay stuck for operator retry.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", configPathFromEnv(),
		"Path to configuration file (env CONFIG_PATH)")

	load := func() (*runtimeEnv, error) {
		return loadEnv(configPath)
	}

	root.AddCommand(
		newServeCommand(load),
		newDrainCommand(load),
		newPoolsCommand(load),
		newPartitionsCommand(load),
		newLoadgenCommand(load),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "poolstore %s (commit %s, built %s)\n", version, commit, buildTime)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// configPathFromEnv resolves the default config path: CONFIG_PATH env var,
// then the conventional location.
func configPathFromEnv() string {
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return envPath
	}
	return defaultConfigPath
}
