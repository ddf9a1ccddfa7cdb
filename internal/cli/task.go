package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var taskHeaders = []string{"ID", "TYPE", "STATUS", "LAST_ERROR", "UPDATED"}

func taskRow(t *TaskResponse) []string {
	return []string{t.ID, t.Type, t.Status, t.LastError, t.UpdatedAt}
}

// NewTaskCmd создаёт группу команд для управления tasks.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}

	cmd.AddCommand(
		newTaskListCmd(clientFn, outputFn),
		newTaskShowCmd(clientFn, outputFn),
		newTaskCreateCmd(clientFn, outputFn),
		newTaskClaimCmd(clientFn, outputFn),
		newTaskCompleteCmd(clientFn, outputFn),
		newTaskFailCmd(clientFn, outputFn),
		newTaskDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

func newTaskListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			tasks, err := client.ListTasks()
			if err != nil {
				return err
			}

			if status != "" {
				filtered := tasks[:0]
				for _, t := range tasks {
					if strings.EqualFold(t.Status, status) {
						filtered = append(filtered, t)
					}
				}
				tasks = filtered
			}

			rows := make([][]string, len(tasks))
			for i := range tasks {
				rows[i] = taskRow(&tasks[i])
			}

			out.Print(taskHeaders, rows, tasks)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (READY, IN_PROGRESS, SUCCEEDED, FAILED)")

	return cmd
}

func newTaskShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.GetTask(args[0])
			if err != nil {
				return err
			}

			printTask(out, task)
			return nil
		},
	}
}

func newTaskCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var taskType string
	var payload string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			doc, err := parseDocument("payload", payload)
			if err != nil {
				return err
			}

			task, err := client.CreateTask(taskType, doc)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task created: %s", task.ID))
			out.Print(taskHeaders, [][]string{taskRow(task)}, task)
			return nil
		},
	}

	cmd.Flags().StringVar(&taskType, "type", "", "Task type (e.g. getmybonus_anycard)")
	cmd.Flags().StringVar(&payload, "payload", "", "Payload as JSON object, or @FILE")
	cmd.MarkFlagRequired("type")

	return cmd
}

func newTaskClaimCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var taskType string

	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim the oldest READY task of a type",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, ok, err := client.ClaimTask(taskType)
			if err != nil {
				return err
			}
			if !ok {
				out.Success("No tasks available")
				return nil
			}

			printTask(out, task)
			return nil
		},
	}

	cmd.Flags().StringVar(&taskType, "type", "", "Task type")
	cmd.MarkFlagRequired("type")

	return cmd
}

func newTaskCompleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var result string

	cmd := &cobra.Command{
		Use:   "complete ID",
		Short: "Report task success with a result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			doc, err := parseDocument("result", result)
			if err != nil {
				return err
			}
			if doc == nil {
				return fmt.Errorf("--result is required")
			}

			task, err := client.CompleteTask(args[0], doc)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task completed: %s", task.ID))
			out.Print(taskHeaders, [][]string{taskRow(task)}, task)
			return nil
		},
	}

	cmd.Flags().StringVar(&result, "result", "", "Result as JSON object, or @FILE")

	return cmd
}

func newTaskFailCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var errMsg string
	var result string

	cmd := &cobra.Command{
		Use:   "fail ID",
		Short: "Report task failure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			doc, err := parseDocument("result", result)
			if err != nil {
				return err
			}

			task, err := client.FailTask(args[0], errMsg, doc)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task failed: %s", task.ID))
			out.Print(taskHeaders, [][]string{taskRow(task)}, task)
			return nil
		},
	}

	cmd.Flags().StringVar(&errMsg, "error", "", "Error message")
	cmd.Flags().StringVar(&result, "result", "", "Optional result as JSON object, or @FILE")
	cmd.MarkFlagRequired("error")

	return cmd
}

func newTaskDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a task and its artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteTask(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task deleted: %s", args[0]))
			return nil
		},
	}
}

func printTask(out *Output, task *TaskResponse) {
	if out.jsonMode {
		out.JSON(task)
		return
	}
	out.Table(taskHeaders, [][]string{taskRow(task)})
	out.Document("payload", task.Payload)
	out.Document("result", task.Result)
}

// parseDocument разбирает JSON-объект из флага. "@path" читает файл.
// Пустое значение — nil.
func parseDocument(name, raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	data := []byte(raw)
	if path, ok := strings.CutPrefix(raw, "@"); ok {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read --%s file: %w", name, err)
		}
		data = b
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid --%s: expected JSON object: %w", name, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("invalid --%s: expected JSON object", name)
	}
	return doc, nil
}
