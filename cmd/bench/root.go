package bench

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ValentinKolb/dBench/cmd/util"
	"github.com/ValentinKolb/dBench/lib/logging"
	"github.com/ValentinKolb/dBench/lib/measure"
	"github.com/ValentinKolb/dBench/lib/session"
	"github.com/ValentinKolb/dBench/lib/store/bstore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	benchConf *util.Config

	// BenchCmd runs one workload against a backend
	BenchCmd = &cobra.Command{
		Use:       "bench [workload]",
		Short:     "Run a benchmark workload against a backend",
		Long:      fmt.Sprintf("Run a benchmark workload against a backend. Workloads: %s", strings.Join(Names(), ", ")),
		Args:      cobra.ExactArgs(1),
		ValidArgs: Names(),
		PreRunE:   processBenchConfig,
		RunE:      run,
	}
)

func init() {
	util.SetupBackendFlags(BenchCmd)

	key := "operations"
	BenchCmd.Flags().Int(key, 0, util.WrapString("Total number of workload operations over all threads (0 = unbounded)"))

	key = "duration"
	BenchCmd.Flags().Duration(key, 0, util.WrapString("Maximum run time, e.g. 30s or 5m (0 = unbounded)"))

	key = "target"
	BenchCmd.Flags().Int(key, 0, util.WrapString("Target throughput in operations per second over all threads (0 = unthrottled)"))

	key = "records"
	BenchCmd.Flags().Int(key, 1000, util.WrapString("Number of jobs in the data set"))

	key = "sources"
	BenchCmd.Flags().Int(key, 10, util.WrapString("Number of namespace sources in the data set"))

	key = "limit"
	BenchCmd.Flags().Int(key, 100, util.WrapString("Row limit of the key range search"))

	key = "progress"
	BenchCmd.Flags().Duration(key, 10*time.Second, util.WrapString("Interval of the progress log (0 = off)"))

	key = "csv"
	BenchCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))

	key = "metrics-addr"
	BenchCmd.Flags().String(key, "", util.WrapString("Address to serve Prometheus metrics on while the benchmark runs, e.g. :9100 (empty = off)"))
}

func processBenchConfig(cmd *cobra.Command, args []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if _, ok := Lookup(args[0]); !ok {
		return fmt.Errorf("unknown workload %q (%s)", args[0], strings.Join(Names(), ", "))
	}

	conf, err := util.GetConfig()
	if err != nil {
		return err
	}
	benchConf = conf
	return logging.Init(conf.LogLevel)
}

func run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	workload, _ := Lookup(args[0])

	fmt.Printf("dBench workload %s\n", workload.Name)
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(benchConf.String())

	catalog, err := benchConf.Catalog()
	if err != nil {
		return err
	}

	reg := measure.NewRegistry()
	mgr := session.NewManager(benchConf.BackendFactory(catalog))
	defer func() {
		if err := mgr.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close backend: %v\n", err)
		}
	}()

	if addr := viper.GetString("metrics-addr"); addr != "" {
		srv := &http.Server{Addr: addr, Handler: reg.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		fmt.Printf("Serving metrics on %s/metrics\n", addr)
	}

	runner := &Runner{
		Factory:  bstore.NewFactory(benchConf.StoreOptions(mgr, catalog, reg)),
		Workload: workload,
		Params: Params{
			Threads:    benchConf.Threads,
			Operations: viper.GetInt("operations"),
			Records:    viper.GetInt("records"),
			Sources:    viper.GetInt("sources"),
			Limit:      viper.GetInt("limit"),
		},
		Duration: viper.GetDuration("duration"),
		Target:   viper.GetInt("target"),
		Progress: viper.GetDuration("progress"),
	}

	fmt.Println("starting workload...")
	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	printResult(os.Stdout, result, reg)

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, result, reg, benchConf); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}
