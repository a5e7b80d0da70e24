package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewAnalysisCmd создаёт группу команд для записей анализа.
func NewAnalysisCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analysis",
		Short: "Inspect analysis records",
	}

	cmd.AddCommand(
		newAnalysisShowCmd(clientFn, outputFn),
		newAnalysisListCmd(clientFn, outputFn),
	)

	return cmd
}

var analysisHeaders = []string{"ID", "PROCESS", "TASK", "SERVICE", "OPERATION", "STATUS", "CREATED"}

func analysisRow(rec AnalysisResponse) []string {
	return []string{
		rec.ID,
		rec.ProcessInstanceID,
		rec.TaskName,
		rec.ServiceName,
		rec.Operation,
		rec.Status,
		rec.CreatedAt,
	}
}

func newAnalysisShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show an analysis record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			rec, err := client.GetAnalysis(args[0])
			if err != nil {
				return err
			}

			out.Print(analysisHeaders, [][]string{analysisRow(*rec)}, rec)
			return nil
		},
	}
}

func newAnalysisListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var processID string
	var threadID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List analysis records by process or thread",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var records []AnalysisResponse
			var err error
			switch {
			case processID != "" && threadID != "":
				return fmt.Errorf("specify either --process or --thread, not both")
			case processID != "":
				records, err = client.ListAnalysesByProcess(processID)
			case threadID != "":
				records, err = client.ListAnalysesByThread(threadID)
			default:
				return fmt.Errorf("--process or --thread is required")
			}
			if err != nil {
				return err
			}

			rows := make([][]string, len(records))
			for i, rec := range records {
				rows[i] = analysisRow(rec)
			}

			out.Print(analysisHeaders, rows, records)
			return nil
		},
	}

	cmd.Flags().StringVar(&processID, "process", "", "Filter by process instance id")
	cmd.Flags().StringVar(&threadID, "thread", "", "Filter by conversation thread id")

	return cmd
}
