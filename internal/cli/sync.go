package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/foodies/internal/connectivity"
	"github.com/vladislavdragonenkov/foodies/internal/metrics"
	"github.com/vladislavdragonenkov/foodies/internal/remote"
	"github.com/vladislavdragonenkov/foodies/internal/service/ordersync"
)

// SyncOptions содержит флаги команды sync.
type SyncOptions struct {
	*RootOptions
	Remote  string
	Timeout time.Duration
}

// NewSyncCommand создаёт команду однократной синхронизации pending-заказов.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Deliver pending orders to the remote endpoint once",
		Long: `Deliver every pending order to the remote endpoint and mark accepted ones as synced.

Orders the server did not accept stay pending. The command exits with an error
when at least one order remains pending.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Remote, "remote", "http://localhost:8081/api/orders", "remote order endpoint")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "per-request timeout")
	return cmd
}

func runSync(ctx context.Context, cmd *cobra.Command, opts *SyncOptions) error {
	if strings.TrimSpace(opts.Remote) == "" {
		return errors.New("--remote is required")
	}

	store := openOrderStore(opts.RootOptions)
	defer store.Close()

	// ручной запуск означает, что пользователь считает сеть доступной
	signal := connectivity.NewMonitor(true, nil, log.WithField("component", "foodiesctl"))
	engine := ordersync.NewEngine(store, remote.NewHTTPSender(opts.Remote, &http.Client{Timeout: opts.Timeout}), signal,
		ordersync.WithLogger(log.WithField("component", "foodiesctl")),
		ordersync.WithMetrics(metrics.NewSyncMetrics()),
	)

	result, err := engine.Sync(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		if err := writeJSON(out, map[string]any{
			"attempted": result.Attempted,
			"synced":    result.Synced,
			"failed":    result.Failed,
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "attempted=%d synced=%d failed=%d\n", result.Attempted, result.Synced, result.Failed)
	}

	if result.Failed > 0 {
		return fmt.Errorf("%d orders remain pending", result.Failed)
	}
	return nil
}
