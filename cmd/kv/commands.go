package kv

import (
	"fmt"
	"strconv"

	"github.com/ValentinKolb/dBench/cmd/util"
	"github.com/ValentinKolb/dBench/lib/codec"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	readCmd = &cobra.Command{
		Use:   "read [key]",
		Short: "Reads one record by primary key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, status := kvStore.Read(commandContext(cmd), kvConf.Table, args[0], util.ParseFieldSet(viper.GetString("fields")))
			if status.IsOK() {
				fmt.Printf("key=%s %s\n", args[0], util.FormatFields(fields))
			}
			return printStatus("read", status)
		},
	}
	scanCmd = &cobra.Command{
		Use:   "scan [startKey] [limit]",
		Short: "Reads up to limit records starting at startKey in key order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("limit must be a number: %w", err)
			}
			rows, status := kvStore.Scan(commandContext(cmd), kvConf.Table, args[0], limit, util.ParseFieldSet(viper.GetString("fields")))
			printRows(rows)
			return printStatus("scan", status)
		},
	}
	insertCmd = &cobra.Command{
		Use:   "insert [key] [field=value]...",
		Short: "Inserts a record through the insert buffer",
		Long: util.WrapString("Inserts a record through the insert buffer. Values are name=text, " +
			"name:int=42, name:bytes=<hex>, name:raw=<hex> (eight bytes are read as an integer) or name:null. With a batch size above one the record is written on exit."),
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := util.ParseValues(args[1:])
			if err != nil {
				return err
			}
			return printStatus("insert", kvStore.Insert(commandContext(cmd), kvConf.Table, args[0], values))
		},
	}
	updateCmd = &cobra.Command{
		Use:   "update [key] [field=value]...",
		Short: "Writes the given fields of a record",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := util.ParseValues(args[1:])
			if err != nil {
				return err
			}
			return printStatus("update", kvStore.Update(commandContext(cmd), kvConf.Table, args[0], values))
		},
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [key]",
		Short: "Deletes a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printStatus("delete", kvStore.Delete(commandContext(cmd), kvConf.Table, args[0]))
		},
	}
	fauCmd = &cobra.Command{
		Use:   "fau [key] [field=value]...",
		Short: "Updates a record if its version matches --expected",
		Long: util.WrapString("Find-and-update: checks the record's version against --expected " +
			"(skipped when the flag is not given), writes the fields together with the next version and prints it."),
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := util.ParseValues(args[1:])
			if err != nil {
				return err
			}
			var expected *int64
			if cmd.Flags().Changed("expected") {
				v, err := cmd.Flags().GetInt64("expected")
				if err != nil {
					return err
				}
				expected = &v
			}
			status, version := kvStore.FindAndUpdate(commandContext(cmd), kvConf.Table, args[0], expected, values)
			if status.IsOK() {
				fmt.Printf("key=%s version=%d\n", args[0], version)
			}
			return printStatus("fau", status)
		},
	}
	scanTimeCmd = &cobra.Command{
		Use:   "scan-time [start] [end] [limit]",
		Short: "Reads records whose creation time lies in [start, end]",
		Long:  util.WrapString("Reads records whose creation time lies in [start, end]. Pass an empty string for an open bound."),
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("limit must be a number: %w", err)
			}
			rows, status := kvStore.ScanWithCreatedTimeFilter(commandContext(cmd), kvConf.Table, args[0], args[1], limit, nil)
			printRows(rows)
			return printStatus("scan-time", status)
		},
	}
	scanNamespaceCmd = &cobra.Command{
		Use:   "scan-ns [start] [end] [limit]",
		Short: "Reads records whose namespace key lies in [start, end]",
		Long:  util.WrapString("Reads records whose namespace key lies in [start, end]. Pass an empty string for an open bound."),
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("limit must be a number: %w", err)
			}
			rows, status := kvStore.ScanWithNamespaceKeyFilter(commandContext(cmd), kvConf.Table, args[0], args[1], limit, nil)
			printRows(rows)
			return printStatus("scan-ns", status)
		},
	}
)

func init() {
	fauCmd.Flags().Int64("expected", 0, util.WrapString("Version the record must currently have"))
}

func printRows(rows []codec.Fields) {
	for i, row := range rows {
		fmt.Printf("%4d  %s\n", i, util.FormatFields(row))
	}
	fmt.Printf("(%d rows)\n", len(rows))
}
