package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/foodies/internal/messaging/kafka"
)

// EventsOptions содержит общие флаги команд events.
type EventsOptions struct {
	*RootOptions
	Brokers string
}

// NewEventsCommand создаёт группу команд для событий order-api в Kafka.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Work with order-api Kafka events",
	}
	cmd.PersistentFlags().StringVar(&opts.Brokers, "brokers", "", "Kafka brokers as comma-separated list (fallback: "+envKafkaBrokers+")")

	cmd.AddCommand(newEventsTailCommand(opts))
	cmd.AddCommand(newReplayDLQCommand(opts))
	return cmd
}

func (o *EventsOptions) brokers() ([]string, error) {
	raw := o.Brokers
	if strings.TrimSpace(raw) == "" {
		raw = os.Getenv(envKafkaBrokers)
	}
	brokers := parseBrokers(raw)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required (--brokers or %s)", envKafkaBrokers)
	}
	return brokers, nil
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		broker := strings.TrimSpace(chunk)
		if broker == "" {
			continue
		}
		brokers = append(brokers, broker)
	}
	return brokers
}

func newEventsTailCommand(opts *EventsOptions) *cobra.Command {
	var (
		topic   string
		group   string
		withDLQ bool
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print order.received events until interrupted",
		Long: `Consume order.received events and print them.

Messages that are not valid order events are retried and, with --dlq,
moved to the dead letter topic where "events replay-dlq" can pick them up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			brokers, err := opts.brokers()
			if err != nil {
				return err
			}

			var consumerOpts []kafka.ConsumerOption
			consumerOpts = append(consumerOpts, kafka.WithLogger(log.WithField("component", "foodiesctl-tail")))
			if withDLQ {
				producer, err := kafka.NewProducer(brokers, kafka.WithClientID("foodiesctl"))
				if err != nil {
					return err
				}
				defer producer.Close()
				consumerOpts = append(consumerOpts, kafka.WithDLQ(producer))
			}

			handler := newEventPrinter(cmd.OutOrStdout(), opts.Format)
			consumer, err := kafka.NewConsumer(brokers, group, []string{topic}, handler, consumerOpts...)
			if err != nil {
				return err
			}
			return tail(cmd.Context(), consumer)
		},
	}

	cmd.Flags().StringVar(&topic, "topic", kafka.TopicOrderEvents, "topic with order events")
	cmd.Flags().StringVar(&group, "group", "foodiesctl", "consumer group id")
	cmd.Flags().BoolVar(&withDLQ, "dlq", false, "send unparseable messages to "+kafka.TopicDeadLetterQueue)
	return cmd
}

type eventConsumer interface {
	Start(ctx context.Context) error
	Stop() error
}

func tail(ctx context.Context, consumer eventConsumer) error {
	if err := consumer.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	if err := consumer.Stop(); err != nil {
		return err
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

// newEventPrinter печатает события; обработчик вызывается из нескольких partition.
func newEventPrinter(w io.Writer, format string) kafka.MessageHandler {
	var mu sync.Mutex
	return func(_ context.Context, message *sarama.ConsumerMessage) error {
		event, err := kafka.ParseOrderReceivedEvent(message)
		if err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		if format == "json" {
			return writeJSON(w, event)
		}
		_, err = fmt.Fprintf(w, "%s order=%s client_order=%d key=%s payload=%s\n",
			event.ReceivedAt.Format("2006-01-02T15:04:05Z07:00"),
			event.OrderID,
			event.ClientOrderID,
			event.IdempotencyKey,
			event.Payload,
		)
		return err
	}
}
