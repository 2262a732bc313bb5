package cli

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
	"github.com/vladislavdragonenkov/foodies/internal/orderstore"
	"github.com/vladislavdragonenkov/foodies/internal/storage/sqlite"
)

// openOrderStore открывает то же SQLite-хранилище, что и offline-client.
func openOrderStore(opts *RootOptions) *orderstore.Store {
	path := opts.DB
	return orderstore.New(func(ctx context.Context) (domain.OrderBackend, error) {
		store, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		return sqlite.NewOrderBackend(store), nil
	}, orderstore.WithLogger(log.WithField("component", "foodiesctl")))
}

// NewOrdersCommand создаёт группу команд orders.
func NewOrdersCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Manage locally stored orders",
	}
	cmd.AddCommand(newOrdersAddCommand(rootOpts))
	cmd.AddCommand(newOrdersListCommand(rootOpts))
	cmd.AddCommand(newOrdersClearCommand(rootOpts))
	return cmd
}

func newOrdersAddCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <json-object>",
		Short: "Save an order as pending",
		Long: `Save an order in the local store with status pending.

Examples:
  foodiesctl orders add '{"item":"burger","qty":2}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload domain.OrderPayload
			if err := json.Unmarshal([]byte(args[0]), &payload); err != nil || payload == nil {
				return fmt.Errorf("%w: %s", domain.ErrInvalidPayload, args[0])
			}

			store := openOrderStore(opts)
			defer store.Close()

			id, err := store.AddEntry(cmd.Context(), payload)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]int64{"id": id})
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "order %d saved as pending\n", id)
			return err
		},
	}
}

func newOrdersListCommand(opts *RootOptions) *cobra.Command {
	var pendingOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := openOrderStore(opts)
			defer store.Close()

			var (
				records []domain.OrderRecord
				err     error
			)
			if pendingOnly {
				records, err = store.ListPending(cmd.Context())
			} else {
				records, err = store.ListEntries(cmd.Context())
			}
			if err != nil {
				return err
			}
			return writeRecords(cmd.OutOrStdout(), opts.Format, records)
		},
	}
	cmd.Flags().BoolVar(&pendingOnly, "pending", false, "show only orders not yet accepted by the server")
	return cmd
}

func newOrdersClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all stored orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := openOrderStore(opts)
			defer store.Close()

			if err := store.ClearAll(cmd.Context()); err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]bool{"cleared": true})
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "orders cleared")
			return err
		},
	}
}
