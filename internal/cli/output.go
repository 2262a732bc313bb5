package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeRecords(w io.Writer, format string, records []domain.OrderRecord) error {
	if format == "json" {
		if records == nil {
			records = []domain.OrderRecord{}
		}
		return writeJSON(w, records)
	}

	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "no orders")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tCLIENT REF\tPAYLOAD")
	for _, record := range records {
		payload, err := json.Marshal(record.Payload)
		if err != nil {
			return fmt.Errorf("encode order %d payload: %w", record.ID, err)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			record.ID,
			record.Status,
			record.CreatedAt().Format(time.RFC3339),
			record.ClientRef,
			payload,
		)
	}
	return tw.Flush()
}
