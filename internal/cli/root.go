// Package cli реализует команды foodiesctl: локальные заказы, ручная синхронизация
// и события Kafka order-api.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/foodies/internal/version"
)

const envKafkaBrokers = "FOODIES_KAFKA_BROKERS"

// RootOptions содержит глобальные флаги.
type RootOptions struct {
	DB      string
	Format  string // "text" | "json"
	Verbose bool
}

// ValidFormats перечисляет форматы вывода.
var ValidFormats = []string{"text", "json"}

// NewRootCommand создаёт корневую команду foodiesctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "foodiesctl",
		Short: "foodiesctl - offline order tooling",
		Long:  "Inspect the local order store, push pending orders and work with order-api events.",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Verbose {
				log.SetLevel(log.DebugLevel)
			}
			return nil
		},
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.DB, "db", defaultDBPath(), "path to the local SQLite order store")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewOrdersCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))

	return cmd
}

func defaultDBPath() string {
	dir := os.Getenv("FOODIES_DATA_DIR")
	if dir == "" {
		dir = "./data"
	}
	return filepath.Join(dir, "orders.db")
}
