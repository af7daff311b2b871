package kv

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dBench/cmd/util"
	"github.com/ValentinKolb/dBench/lib/logging"
	"github.com/ValentinKolb/dBench/lib/session"
	"github.com/ValentinKolb/dBench/lib/store"
	"github.com/ValentinKolb/dBench/lib/store/bstore"
	"github.com/spf13/cobra"
)

var (
	kvStore store.IStore
	kvConf  *util.Config
	kvMgr   *session.Manager

	// KeyValueCommands represents the single operation command group
	// The store is opened before the subcommand runs and released by
	// Teardown, which the caller runs whether or not the command failed.
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Run single store operations against a backend",
		PersistentPreRunE: setupStore,
	}
)

func init() {
	util.SetupBackendFlags(KeyValueCommands)

	key := "fields"
	KeyValueCommands.PersistentFlags().String(key, "", util.WrapString("Comma separated list of fields to return (empty = all fields of the table)"))

	// Add subcommands
	KeyValueCommands.AddCommand(readCmd)
	KeyValueCommands.AddCommand(scanCmd)
	KeyValueCommands.AddCommand(insertCmd)
	KeyValueCommands.AddCommand(updateCmd)
	KeyValueCommands.AddCommand(deleteCmd)
	KeyValueCommands.AddCommand(fauCmd)
	KeyValueCommands.AddCommand(scanTimeCmd)
	KeyValueCommands.AddCommand(scanNamespaceCmd)
}

// setupStore creates the backend session and one store for the command
func setupStore(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	conf, err := util.GetConfig()
	if err != nil {
		return err
	}
	if err := logging.Init(conf.LogLevel); err != nil {
		return err
	}

	catalog, err := conf.Catalog()
	if err != nil {
		return err
	}

	kvConf = conf
	kvMgr = session.NewManager(conf.BackendFactory(catalog))
	kvStore = bstore.NewStore(conf.StoreOptions(kvMgr, catalog, nil))
	if err := kvStore.Init(commandContext(cmd)); err != nil {
		_ = kvMgr.Close()
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	return nil
}

// Teardown flushes the store opened by a kv command and closes the
// backend, which saves the data file of the memory backend. It is a no-op
// when no kv command ran and safe to call more than once.
func Teardown(ctx context.Context) error {
	if kvStore == nil {
		return nil
	}
	kvStore.Cleanup(ctx)
	err := kvMgr.Close()
	kvStore, kvMgr = nil, nil
	return err
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// printStatus prints the status line every command ends with and turns
// a failed status into a command error
func printStatus(op string, status store.Status) error {
	fmt.Printf("%s: %s\n", op, status)
	if !status.IsOK() {
		return fmt.Errorf("%s failed with status %s", op, status)
	}
	return nil
}
