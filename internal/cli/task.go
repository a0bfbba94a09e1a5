package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cuongbtq/task-manage/internal/api/dto"
	"github.com/cuongbtq/task-manage/internal/job"
	"github.com/spf13/cobra"
)

// NewTaskCmd creates the command group for job submission and records
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Submit jobs and inspect job records",
	}

	cmd.AddCommand(
		newTaskCreateCmd(clientFn, outputFn),
		newTaskShowCmd(clientFn, outputFn),
		newTaskListCmd(clientFn, outputFn),
	)

	return cmd
}

func newTaskCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var terminalStatus int

	cmd := &cobra.Command{
		Use:   "create WORKER [ARG...]",
		Short: "Submit a job to a worker",
		Long: "Submit a job to a worker. Each ARG is sent as JSON when it parses " +
			"as JSON (numbers, objects, quoted strings) and as a plain string otherwise.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := dto.CreateTaskRequest{
				Worker:         args[0],
				TerminalStatus: &terminalStatus,
				Args:           ParseArgs(args[1:]),
			}

			resp, err := clientFn().CreateTask(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Task created: %s", resp.RecordID))
			out.Print(
				[]string{"RECORD_ID", "WORKER"},
				[][]string{{resp.RecordID, resp.Worker}},
				resp,
			)
			return nil
		},
	}

	cmd.Flags().IntVar(&terminalStatus, "terminal-status", job.StatusTerminal, "Status recorded when the worker completes")

	return cmd
}

func newTaskShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show RECORD_ID",
		Short: "Show a job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := clientFn().GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			outputFn().Print(taskHeaders, [][]string{taskRow(*t)}, t)
			return nil
		},
	}
}

func newTaskListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListTasksOpts
	var status int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List job records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("status") {
				opts.Status = &status
			}

			resp, err := clientFn().ListTasks(cmd.Context(), opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(resp.Tasks))
			for i, t := range resp.Tasks {
				rows[i] = taskRow(t)
			}

			out := outputFn()
			out.Print(taskHeaders, rows, resp)
			if resp.NextCursor != "" && !out.jsonMode {
				out.Success("Next page: --cursor " + resp.NextCursor)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Worker, "worker", "", "Filter by worker name")
	cmd.Flags().IntVar(&status, "status", 0, "Filter by status code")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 0, "Records per page (server default 20)")
	cmd.Flags().StringVar(&opts.Cursor, "cursor", "", "Cursor returned by the previous page")

	return cmd
}

var taskHeaders = []string{"RECORD_ID", "WORKER", "STATUS", "CREATED", "FINISHED", "RESULT"}

func taskRow(t dto.TaskDTO) []string {
	result := string(t.Result)
	if len(result) > 60 {
		result = result[:57] + "..."
	}
	return []string{t.RecordID, t.Worker, strconv.Itoa(t.Status), t.CreateTime, t.FinishTime, result}
}

// ParseArgs converts command line values into job arguments
func ParseArgs(values []string) []json.RawMessage {
	out := make([]json.RawMessage, len(values))
	for i, v := range values {
		if json.Valid([]byte(v)) {
			out[i] = json.RawMessage(v)
			continue
		}
		quoted, _ := json.Marshal(v)
		out[i] = quoted
	}
	return out
}
