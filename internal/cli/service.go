package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewServiceCmd создаёт группу команд для управления сервисами.
func NewServiceCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage backend service registrations",
	}

	cmd.AddCommand(
		newServiceListCmd(clientFn, outputFn),
		newServiceRegisterCmd(clientFn, outputFn),
		newServiceDeregisterCmd(clientFn, outputFn),
	)

	return cmd
}

func newServiceListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered service endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			services, err := client.ListServices()
			if err != nil {
				return err
			}

			headers := []string{"SERVICE", "HANDLE", "ADDRESS", "PORT", "HEALTHY"}
			rows := make([][]string, len(services))
			for i, s := range services {
				rows[i] = []string{
					s.Service,
					s.Handle,
					s.Endpoint.Address,
					strconv.Itoa(s.Endpoint.Port),
					strconv.FormatBool(s.Healthy),
				}
			}

			out.Print(headers, rows, services)
			return nil
		},
	}
}

func newServiceRegisterCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req RegisterServiceRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a service endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			registered, err := client.RegisterService(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Endpoint registered: %s", registered.Handle))
			out.Print(
				[]string{"SERVICE", "HANDLE"},
				[][]string{{registered.Service, registered.Handle}},
				registered,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Service, "service", "", "Logical service name (required)")
	cmd.Flags().StringVar(&req.Address, "address", "", "Endpoint host (required)")
	cmd.Flags().IntVar(&req.Port, "port", 0, "Endpoint port (required)")
	cmd.Flags().StringSliceVar(&req.Tags, "tag", nil, "Endpoint tag (repeatable)")
	cmd.Flags().StringVar(&req.HealthPath, "health-path", "", "Health check path (default /healthz)")
	cmd.Flags().StringSliceVar(&req.IdempotentOps, "idempotent-op", nil, "Operation safe to retry (repeatable)")
	cmd.MarkFlagRequired("service")
	cmd.MarkFlagRequired("address")
	cmd.MarkFlagRequired("port")

	return cmd
}

func newServiceDeregisterCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "deregister SERVICE HANDLE",
		Short: "Deregister a service endpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeregisterService(args[0], args[1]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Endpoint deregistered: %s", args[1]))
			return nil
		},
	}
}
