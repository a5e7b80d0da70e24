package cli

import (
	"github.com/spf13/cobra"
)

// NewConversationCmd создаёт группу команд для контекстов диалогов.
func NewConversationCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversation",
		Short: "Inspect conversation contexts",
	}

	cmd.AddCommand(newConversationShowCmd(clientFn, outputFn))

	return cmd
}

func newConversationShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show PROCESS_ID",
		Short: "Show the conversation context of a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			cc, err := client.GetConversation(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"PROCESS", "THREAD", "ASSISTANT", "CAPTURED", "UPDATED"},
				[][]string{{cc.ProcessInstanceID, cc.ThreadID, cc.AssistantID, cc.CapturedAt, cc.UpdatedAt}},
				cc,
			)
			return nil
		},
	}
}
