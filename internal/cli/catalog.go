package cli

import (
	"strconv"

	"github.com/cuongbtq/task-manage/internal/api/dto"
	"github.com/cuongbtq/task-manage/internal/orchestrator"
	"github.com/cuongbtq/task-manage/internal/topology"
	"github.com/cuongbtq/task-manage/internal/workers"
	"github.com/spf13/cobra"
)

// NewWorkersCmd lists the workers registered on the server
func NewWorkersCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "workers",
		Short: "List registered workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := clientFn().ListWorkers(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, len(ws))
			for i, w := range ws {
				rows[i] = []string{w.Name, w.Module, strconv.FormatBool(w.HasPostProcessor)}
			}

			outputFn().Print([]string{"NAME", "MODULE", "POST_PROCESSOR"}, rows, ws)
			return nil
		},
	}
}

// NewTopologyCmd prints the queue topology. With --offline it is derived from
// the worker registry compiled into this binary instead of asking the server.
func NewTopologyCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var offline bool
	var defaultQueue string

	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Show exchange, queue and routing key bindings",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp *dto.TopologyResponse
			var err error
			if offline {
				resp, err = LocalTopology(defaultQueue)
			} else {
				resp, err = clientFn().GetTopology(cmd.Context())
			}
			if err != nil {
				return err
			}

			rows := make([][]string, len(resp.Bindings))
			for i, b := range resp.Bindings {
				rows[i] = []string{b.Exchange, b.Queue, b.RoutingKey}
			}

			outputFn().Print([]string{"EXCHANGE", "QUEUE", "ROUTING_KEY"}, rows, resp)
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Derive the topology locally without calling the API")
	cmd.Flags().StringVar(&defaultQueue, "default-queue", topology.DefaultQueue, "Default queue used with --offline")

	return cmd
}

// LocalTopology builds the topology a deployment of this binary would declare
func LocalTopology(defaultQueue string) (*dto.TopologyResponse, error) {
	reg, err := workers.Registry(workers.Deps{})
	if err != nil {
		return nil, err
	}

	topo, err := topology.Build(defaultQueue, orchestrator.TaskNames(reg)...)
	if err != nil {
		return nil, err
	}

	return &dto.TopologyResponse{
		DefaultQueue: topo.Default().Queue,
		Bindings:     topo.Bindings(),
	}, nil
}
