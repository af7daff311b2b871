// Package cmd implements the command-line interface of dBench. It provides
// a hierarchical command structure for running benchmark workloads and
// single store operations against a backend.
//
// The package is organized into several subpackages:
//
//   - kv: Single store operations (read, scan, insert, update, delete, fau, scan-time, scan-ns)
//   - bench: Workload runner (load, scan-read, repeated-updates, key-range-search, secondary-index-search)
//   - util: Shared flags, configuration and value parsing (internal use)
//
// Every flag can also be set through the environment as DBENCH_<FLAG> with
// dashes replaced by underscores (e.g. DBENCH_BATCH_SIZE=100). The files
// .env and .env.local in the working directory are loaded first.
//
// The memory backend lives in the process. Pass --data-file to keep its
// data between invocations, e.g. to run "bench load" followed by
// "bench repeated-updates":
//
//	dbench bench load --data-file data.bin --records 5000 --threads 8 --batch-size 100
//	dbench bench repeated-updates --data-file data.bin --records 5000 --threads 8
//
// See dbench -help for a list of all commands.
package cmd
