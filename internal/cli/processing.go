package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewProcessingCmd создаёт группу команд для фоновой обработки.
func NewProcessingCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "processing",
		Short: "Manage background processing",
	}

	cmd.AddCommand(newProcessingRunCmd(clientFn, outputFn))

	return cmd
}

func newProcessingRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run pending processing tasks now",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			result, err := client.RunProcessing(batchSize)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Processed %d tasks", result.Processed))
			out.Print(
				[]string{"PROCESSED"},
				[][]string{{fmt.Sprintf("%d", result.Processed)}},
				result,
			)
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 50, "Maximum tasks to process")

	return cmd
}
