package main

import (
	"encoding/json"
	"fmt"
	"os"

	"provenance-go/internal/research"

	"github.com/spf13/cobra"
)

// queue command
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Review machine-extracted facts",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queue entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		resultType, _ := cmd.Flags().GetString("result-type")
		extractionType, _ := cmd.Flags().GetString("extraction-type")
		page, _ := cmd.Flags().GetInt("page")
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "queue list")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Queue().Queue(cmd.Context(), research.QueueQuery{
			ResearcherID:   optInt64(cmd, "researcher"),
			Status:         research.ValidationStatus(status),
			ResultType:     resultType,
			ExtractionType: extractionType,
			MinConfidence:  optFloat(cmd, "min-confidence"),
			Page:           page,
			Limit:          limit,
		})
		if err != nil {
			return err
		}

		if len(res.Items) == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}
		for _, it := range res.Items {
			conf := "-"
			if it.Confidence != nil {
				conf = fmt.Sprintf("%.2f", *it.Confidence)
			}
			fmt.Printf("result #%-6d  %-9s  %-8s  object:%d  conf:%s  %s\n",
				it.ResultID, it.Status, it.ResultType, it.ObjectID, conf, it.Data)
		}
		fmt.Printf("\npage %d, %d of %d\n", res.Page, len(res.Items), res.Total)
		return nil
	},
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue counts by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "queue stats")
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Queue().Stats(cmd.Context(), optInt64(cmd, "researcher"))
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

var queueImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import an extraction batch and queue its results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening batch: %w", err)
		}
		defer f.Close()

		a, err := newApp(cmd, "queue import")
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.ImportExtraction(a.Context(cmd.Context()), f)
		if err != nil {
			return err
		}
		fmt.Printf("Imported job #%d: %d result(s), %d queued\n", summary.JobID, summary.Results, summary.Enqueued)
		return nil
	},
}

// printOutcome reports a single review decision.
func printOutcome(resultID int64, out research.ReviewOutcome) {
	switch {
	case !out.Applied:
		fmt.Printf("Result #%d has no pending review.\n", resultID)
	case out.Assertion != nil:
		fmt.Printf("Result #%d reviewed; promoted to assertion #%d\n", resultID, out.Assertion.ID)
	default:
		fmt.Printf("Result #%d reviewed\n", resultID)
	}
}

var queueAcceptCmd = &cobra.Command{
	Use:   "accept RESULT",
	Short: "Accept a result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rid, err := parseID(args[0], "result")
		if err != nil {
			return err
		}
		a, err := newApp(cmd, "queue accept")
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := a.Queue().Accept(a.Context(cmd.Context()), rid, a.ActorID())
		if err != nil {
			return err
		}
		printOutcome(rid, out)
		return nil
	},
}

var queueRejectCmd = &cobra.Command{
	Use:   "reject RESULT",
	Short: "Reject a result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rid, err := parseID(args[0], "result")
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")

		a, err := newApp(cmd, "queue reject")
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := a.Queue().Reject(a.Context(cmd.Context()), rid, a.ActorID(), reason)
		if err != nil {
			return err
		}
		printOutcome(rid, out)
		return nil
	},
}

var queueModifyCmd = &cobra.Command{
	Use:   "modify RESULT JSON",
	Short: "Accept a result with corrected data",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rid, err := parseID(args[0], "result")
		if err != nil {
			return err
		}
		data := json.RawMessage(args[1])
		if !json.Valid(data) {
			return fmt.Errorf("corrected data is not valid JSON")
		}

		a, err := newApp(cmd, "queue modify")
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := a.Queue().Modify(a.Context(cmd.Context()), rid, a.ActorID(), data)
		if err != nil {
			return err
		}
		printOutcome(rid, out)
		return nil
	},
}

// parseIDs parses result id arguments.
func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseID(arg, "result")
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

var queueBulkAcceptCmd = &cobra.Command{
	Use:   "bulk-accept RESULT...",
	Short: "Accept several results",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		a, err := newApp(cmd, "queue bulk-accept")
		if err != nil {
			return err
		}
		defer a.Close()

		n := a.Queue().BulkAccept(a.Context(cmd.Context()), ids, a.ActorID())
		fmt.Printf("Accepted %d of %d result(s)\n", n, len(ids))
		return nil
	},
}

var queueBulkRejectCmd = &cobra.Command{
	Use:   "bulk-reject RESULT...",
	Short: "Reject several results",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")

		a, err := newApp(cmd, "queue bulk-reject")
		if err != nil {
			return err
		}
		defer a.Close()

		n := a.Queue().BulkReject(a.Context(cmd.Context()), ids, a.ActorID(), reason)
		fmt.Printf("Rejected %d of %d result(s)\n", n, len(ids))
		return nil
	},
}

var queueDisagreementsCmd = &cobra.Command{
	Use:   "disagreements JOB",
	Short: "List results whose reviewers disagree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jid, err := parseID(args[0], "job")
		if err != nil {
			return err
		}
		a, err := newApp(cmd, "queue disagreements")
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.Queue().Disagreements(cmd.Context(), jid)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No disagreements.")
			return nil
		}
		return printJSON(list)
	},
}

func init() {
	queueListCmd.Flags().Int64("researcher", 0, "Restrict to a researcher's queue")
	queueListCmd.Flags().String("status", "pending", "Entry status; empty lists all")
	queueListCmd.Flags().String("result-type", "", "Restrict to a result type")
	queueListCmd.Flags().String("extraction-type", "", "Restrict to an extraction type")
	queueListCmd.Flags().Float64("min-confidence", 0, "Minimum result confidence")
	queueListCmd.Flags().IntP("page", "p", 1, "Page number")
	queueListCmd.Flags().IntP("limit", "n", 25, "Entries per page")
	queueStatsCmd.Flags().Int64("researcher", 0, "Restrict to a researcher's queue")

	queueRejectCmd.Flags().String("reason", "", "Reason recorded with the decision")
	queueBulkRejectCmd.Flags().String("reason", "", "Reason recorded with the decisions")

	queueCmd.AddCommand(queueListCmd, queueStatsCmd, queueImportCmd, queueAcceptCmd, queueRejectCmd,
		queueModifyCmd, queueBulkAcceptCmd, queueBulkRejectCmd, queueDisagreementsCmd)
	rootCmd.AddCommand(queueCmd)
}
