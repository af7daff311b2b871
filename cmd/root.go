package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ValentinKolb/dBench/cmd/bench"
	"github.com/ValentinKolb/dBench/cmd/kv"
	"github.com/ValentinKolb/dBench/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dbench",
		Short: "benchmark driver for cloud databases",
		Long: fmt.Sprintf(`dBench (v%s)

A benchmark driver that runs the same workloads against Cloud Spanner,
Firestore and an in-memory engine through one data-access layer.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dBench",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dBench v%s\n", Version)
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
// SIGINT and SIGTERM cancel the command's context, a running benchmark stops
// and flushes its buffers.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := RootCmd.ExecuteContext(ctx)

	// runs after failed commands too, pending inserts are written even when
	// the run was interrupted
	if terr := kv.Teardown(context.WithoutCancel(ctx)); terr != nil {
		fmt.Fprintf(os.Stderr, "failed to close backend: %v\n", terr)
		err = errors.Join(err, terr)
	}
	if err != nil {
		stop()
		os.Exit(1)
	}
}
