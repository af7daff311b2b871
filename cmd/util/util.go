package util

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is prepended to every configuration key read from the environment
	EnvPrefix = "dbench"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupBackendFlags adds the backend and store flags shared by all commands
// that talk to a backend
func SetupBackendFlags(cmd *cobra.Command) {
	key := "backend"
	cmd.PersistentFlags().String(key, "memory", WrapString("Backend to use (memory, spanner, firestore)"))

	key = "host"
	cmd.PersistentFlags().String(key, "", WrapString("Custom endpoint of the backend (empty = default endpoint; the emulator variables SPANNER_EMULATOR_HOST and FIRESTORE_EMULATOR_HOST are honoured). Firestore treats a host without --credentials-file as an emulator"))

	key = "project"
	cmd.PersistentFlags().String(key, "", WrapString("GCP project. Spanner falls back to the metadata server when empty, Firestore requires it"))

	key = "instance"
	cmd.PersistentFlags().String(key, "", WrapString("Spanner instance id"))

	key = "database"
	cmd.PersistentFlags().String(key, "", WrapString("Spanner database id or Firestore database id (empty = (default) for Firestore)"))

	key = "credentials-file"
	cmd.PersistentFlags().String(key, "", WrapString("Service account key file. Required for Firestore unless the emulator is used"))

	key = "collection-prefix"
	cmd.PersistentFlags().String(key, "", WrapString("(firestore) Prefix prepended to every collection name, isolates runs sharing a database"))

	key = "read-mode"
	cmd.PersistentFlags().String(key, "direct", WrapString("How point reads are issued (direct, query)"))

	key = "batch-size"
	cmd.PersistentFlags().Int(key, 1, WrapString("Number of inserts buffered per worker before they are written in one batch"))

	key = "staleness-seconds"
	cmd.PersistentFlags().Int(key, 0, WrapString("Max staleness of reads in seconds (0 = strong reads)"))

	key = "num-channels"
	cmd.PersistentFlags().Int(key, 0, WrapString("Number of gRPC channels of the Spanner client (0 = client default)"))

	key = "threads"
	cmd.PersistentFlags().Int(key, 1, WrapString("Number of workers. Also the minimum size of the Spanner session pool"))

	key = "field-count"
	cmd.PersistentFlags().Int(key, 10, WrapString("Number of fields of the generic table layout"))

	key = "field-name-prefix"
	cmd.PersistentFlags().String(key, "field", WrapString("Field name prefix of the generic table layout"))

	key = "table"
	cmd.PersistentFlags().String(key, "usertable", WrapString("Default table of the single operation commands"))

	key = "schema"
	cmd.PersistentFlags().String(key, "", WrapString("Optional YAML file with table layouts that extend or override the built-in ones"))

	key = "versioning"
	cmd.PersistentFlags().String(key, "atomic", WrapString("How versioned updates are protected (atomic = backend transaction when available, optimistic = read then write)"))

	key = "data-file"
	cmd.PersistentFlags().String(key, "", WrapString("(memory backend) File the in-memory data is loaded from on start and saved to on exit"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "info", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// InitConfig loads .env files and binds environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
