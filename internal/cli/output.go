package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"ticketchain/internal/analysis/domain"
	"ticketchain/internal/analysis/service"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(w io.Writer, r service.Report) {
	fmt.Fprintf(w, "Chain %s (seed %s): %d tickets, %d timeline events\n", r.ChainID, r.SeedTicketID, r.TicketCount, r.TimelineEvents)
	if r.Partial {
		fmt.Fprintf(w, "Partial chain: %s tickets could not be read\n", strings.Join(r.Unavailable, ", "))
	}
	if r.Prompt != nil && r.Prompt.Truncated {
		fmt.Fprintf(w, "Prompt trimmed to %d characters (detail %s, %d records and %d events omitted)\n",
			r.Prompt.Chars, r.Prompt.Detail, r.Prompt.OmittedTickets, r.Prompt.OmittedEvents)
	}
	if r.Reused {
		fmt.Fprintln(w, "Reused a fresh stored analysis")
	}
	fmt.Fprintf(w, "State: %s\n", r.State)
	for _, res := range r.Results {
		fmt.Fprintln(w)
		printResult(w, res)
	}
	if len(r.Artifacts) > 0 {
		fmt.Fprintf(w, "\nArchived %d run inputs\n", len(r.Artifacts))
	}
}

func printResult(w io.Writer, r domain.AnalysisResult) {
	fmt.Fprintf(w, "Analysis %s\n", r.ID)
	fmt.Fprintf(w, "  phase:   %s\n", r.Phase)
	fmt.Fprintf(w, "  status:  %s\n", r.Status)
	fmt.Fprintf(w, "  chain:   %s (seed %s, %d tickets)\n", r.ChainID, r.SeedTicketID, r.TicketCount)
	if r.ModelID != "" {
		fmt.Fprintf(w, "  model:   %s\n", r.ModelID)
	}
	fmt.Fprintf(w, "  created: %s\n", r.CreatedAt.Format(time.RFC3339))
	if r.Status == domain.StatusFailed {
		fmt.Fprintf(w, "  failure: %s: %s\n", r.FailureReason, r.FailureDetail)
		return
	}

	if r.Narrative != "" {
		fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(r.Narrative))
	}
	if p := r.Payload; p != nil {
		fmt.Fprintf(w, "  extracted: %d timeline entries, %d dispatch links, %d shortages, %d revisits, %d billing notes, %d anomalies\n",
			len(p.Timeline), len(p.Relationships), len(p.Shortages), len(p.Revisits), len(p.Billing), len(p.Anomalies))
		dispatches := make([]string, 0, len(p.Relationships))
		for id := range p.Relationships {
			dispatches = append(dispatches, id)
		}
		sort.Strings(dispatches)
		for _, id := range dispatches {
			fmt.Fprintf(w, "    %s -> %s\n", id, strings.Join(p.Relationships[id], ", "))
		}
	}
}

func printBatch(w io.Writer, b service.BatchReport) {
	succeeded, failed := b.Counts()
	fmt.Fprintf(w, "Batch %s %s: %d succeeded, %d failed\n", b.ID, b.Status, succeeded, failed)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TICKET\tSTATUS\tCHAIN\tSTATE\tDETAIL")
	for _, id := range b.TicketIDs {
		item := b.Items[id]
		chain, state, detail := "-", "-", item.Error
		if item.Report != nil {
			chain, state = item.Report.ChainID, item.Report.State
			if item.Report.Reused {
				detail = "reused"
			}
		}
		if detail == "" {
			detail = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", id, item.Status, chain, state, detail)
	}
	_ = tw.Flush()
}

func printSummaries(w io.Writer, list []domain.Summary) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No analyses stored.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCHAIN\tSEED\tPHASE\tSTATUS\tMODEL\tTICKETS\tCREATED")
	for _, s := range list {
		status := string(s.Status)
		if s.FailureReason != "" {
			status += " (" + string(s.FailureReason) + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			s.ID, s.ChainID, s.SeedTicketID, s.Phase, status, orDash(s.ModelID), s.TicketCount, s.CreatedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
