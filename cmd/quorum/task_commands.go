package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"quorum/internal/api"
	"quorum/internal/approval"
	"quorum/internal/config"
	"quorum/internal/ident"
	"quorum/internal/payload"
	"quorum/internal/query"
	"quorum/internal/store"
)

func newTaskCommand(ctx *commandContext) *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Create, inspect, and vote on approval tasks",
	}

	taskCmd.AddCommand(newTaskCreateCommand(ctx))
	taskCmd.AddCommand(newTaskGetCommand(ctx))
	taskCmd.AddCommand(newTaskListCommand(ctx))
	taskCmd.AddCommand(newTaskVoteCommand(ctx))
	taskCmd.AddCommand(newTaskDeleteCommand(ctx))

	return taskCmd
}

func newTaskCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		uidFlag     string
		gidFlag     string
		kindFlag    string
		dueFlag     string
		threshold   int
		assignees   []string
		approvers   []string
		messageFlag string
		payloadJSON string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new approval task",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := api.ParseID("uid", uidFlag)
			if err != nil {
				return err
			}
			gid, err := api.ParseOptionalID("gid", gidFlag)
			if err != nil {
				return err
			}
			assigneeIDs, err := api.ParseIDs("assignee", assignees)
			if err != nil {
				return err
			}
			approverIDs, err := api.ParseIDs("approver", approvers)
			if err != nil {
				return err
			}
			duedate, err := parseDuedate(dueFlag)
			if err != nil {
				return err
			}
			encoded, err := encodePayload(payloadJSON)
			if err != nil {
				return err
			}

			return ctx.withEngine(func(cfg *config.Config, st *store.Store, eng *approval.Engine) error {
				task, err := eng.Create(cmd.Context(), approval.CreateRequest{
					UID:       uid,
					GID:       gid,
					Kind:      kindFlag,
					Duedate:   duedate,
					Threshold: threshold,
					Assignees: assigneeIDs,
					Approvers: approverIDs,
					Message:   messageFlag,
					Payload:   encoded,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created task %s (threshold %d, %d assignees)\n",
					task.ID, task.Threshold, len(task.Assignees))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&uidFlag, "uid", "", "Owner identifier")
	cmd.Flags().StringVar(&gidFlag, "gid", "", "Owning group identifier")
	cmd.Flags().StringVar(&kindFlag, "kind", "", "Task kind label")
	cmd.Flags().StringVar(&dueFlag, "due", "", "Due date (RFC3339)")
	cmd.Flags().IntVar(&threshold, "threshold", 1, "Approvals required to resolve")
	cmd.Flags().StringArrayVar(&assignees, "assignee", nil, "Assignee identifier (repeatable)")
	cmd.Flags().StringArrayVar(&approvers, "approver", nil, "Additional approver identifier (repeatable)")
	cmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Task message")
	cmd.Flags().StringVar(&payloadJSON, "payload", "", "Task payload as a JSON document")
	_ = cmd.MarkFlagRequired("uid")
	_ = cmd.MarkFlagRequired("assignee")

	return cmd
}

func newTaskGetCommand(ctx *commandContext) *cobra.Command {
	var uidFlag, idFlag string

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show a single task",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := api.ParseID("uid", uidFlag)
			if err != nil {
				return err
			}
			id, err := api.ParseID("id", idFlag)
			if err != nil {
				return err
			}
			return ctx.withEngine(func(cfg *config.Config, st *store.Store, eng *approval.Engine) error {
				task, err := eng.Get(cmd.Context(), uid, id)
				if err != nil {
					return err
				}
				printTask(cmd, task)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&uidFlag, "uid", "", "Owner identifier")
	cmd.Flags().StringVar(&idFlag, "id", "", "Task identifier")
	_ = cmd.MarkFlagRequired("uid")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newTaskListCommand(ctx *commandContext) *cobra.Command {
	var (
		uidFlag    string
		statusFlag string
		tokenFlag  string
		limitFlag  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an owner's tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := api.ParseID("uid", uidFlag)
			if err != nil {
				return err
			}
			status, err := api.ParseStatusFilter(statusFlag)
			if err != nil {
				return err
			}
			before, err := query.ParseToken(tokenFlag)
			if err != nil {
				return err
			}

			return ctx.withEngine(func(cfg *config.Config, st *store.Store, eng *approval.Engine) error {
				limit := query.Limit(cfg, limitFlag)
				tasks, err := eng.List(cmd.Context(), uid, status, before, limit)
				if err != nil {
					return err
				}
				if len(tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No tasks")
					return nil
				}

				page := query.PageOf(tasks, limit, func(t *store.Task) ident.ID { return t.ID })
				rows := make([][]string, 0, len(page.Items))
				for _, task := range page.Items {
					rows = append(rows, []string{
						task.ID.String(),
						task.Kind,
						task.Status.String(),
						fmt.Sprintf("%d/%d", len(task.Resolved), task.Threshold),
						formatUnixMillis(task.CreatedAt),
						formatUnixMillis(task.Duedate),
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Kind", "Status", "Approvals", "Created", "Due"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				if page.NextToken != "" {
					fmt.Fprintf(out, "More tasks available: --token %s\n", page.NextToken)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&uidFlag, "uid", "", "Owner identifier")
	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by status (processing, resolved, rejected)")
	cmd.Flags().StringVar(&tokenFlag, "token", "", "Resume token from a previous page")
	cmd.Flags().IntVar(&limitFlag, "limit", 0, "Page size")
	_ = cmd.MarkFlagRequired("uid")
	return cmd
}

func newTaskVoteCommand(ctx *commandContext) *cobra.Command {
	var uidFlag, idFlag, voterFlag, decisionFlag string

	cmd := &cobra.Command{
		Use:   "vote",
		Short: "Record an approval or rejection",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := api.ParseID("uid", uidFlag)
			if err != nil {
				return err
			}
			id, err := api.ParseID("id", idFlag)
			if err != nil {
				return err
			}
			voter, err := api.ParseID("voter", voterFlag)
			if err != nil {
				return err
			}
			decision, err := api.ParseDecision(decisionFlag)
			if err != nil {
				return err
			}

			return ctx.withEngine(func(cfg *config.Config, st *store.Store, eng *approval.Engine) error {
				task, err := eng.Vote(cmd.Context(), uid, id, voter, decision)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Vote recorded; task is %s (%d/%d approvals)\n",
					task.Status, len(task.Resolved), task.Threshold)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&uidFlag, "uid", "", "Owner identifier")
	cmd.Flags().StringVar(&idFlag, "id", "", "Task identifier")
	cmd.Flags().StringVar(&voterFlag, "voter", "", "Voter identifier")
	cmd.Flags().StringVar(&decisionFlag, "decision", "approve", "approve or reject")
	_ = cmd.MarkFlagRequired("uid")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("voter")
	return cmd
}

func newTaskDeleteCommand(ctx *commandContext) *cobra.Command {
	var uidFlag, idFlag string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a task and its notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := api.ParseID("uid", uidFlag)
			if err != nil {
				return err
			}
			id, err := api.ParseID("id", idFlag)
			if err != nil {
				return err
			}
			return ctx.withEngine(func(cfg *config.Config, st *store.Store, eng *approval.Engine) error {
				if err := eng.Delete(cmd.Context(), uid, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s\n", id)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&uidFlag, "uid", "", "Owner identifier")
	cmd.Flags().StringVar(&idFlag, "id", "", "Task identifier")
	_ = cmd.MarkFlagRequired("uid")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func printTask(cmd *cobra.Command, task *store.Task) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Task:      %s\n", task.ID)
	fmt.Fprintf(out, "Owner:     %s\n", task.UID)
	if !task.GID.IsZero() {
		fmt.Fprintf(out, "Group:     %s\n", task.GID)
	}
	if task.Kind != "" {
		fmt.Fprintf(out, "Kind:      %s\n", task.Kind)
	}
	fmt.Fprintf(out, "Status:    %s\n", task.Status)
	fmt.Fprintf(out, "Approvals: %d/%d\n", len(task.Resolved), task.Threshold)
	if len(task.Rejected) > 0 {
		fmt.Fprintf(out, "Rejected:  %d\n", len(task.Rejected))
	}
	fmt.Fprintf(out, "Created:   %s\n", formatUnixMillis(task.CreatedAt))
	fmt.Fprintf(out, "Updated:   %s\n", formatUnixMillis(task.UpdatedAt))
	if task.Duedate != 0 {
		fmt.Fprintf(out, "Due:       %s\n", formatUnixMillis(task.Duedate))
	}
	if task.Message != "" {
		fmt.Fprintf(out, "Message:   %s\n", task.Message)
	}
	if len(task.Payload) > 0 {
		if doc, err := decodePayload(task.Payload); err == nil {
			fmt.Fprintf(out, "Payload:   %s\n", doc)
		}
	}
}

func parseDuedate(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return 0, fmt.Errorf("invalid due date %q (want RFC3339): %w", value, err)
	}
	return ts.UnixMilli(), nil
}

// encodePayload converts a JSON document from the command line into the
// stored payload encoding.
func encodePayload(jsonDoc string) ([]byte, error) {
	jsonDoc = strings.TrimSpace(jsonDoc)
	if jsonDoc == "" {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal([]byte(jsonDoc), &value); err != nil {
		return nil, fmt.Errorf("invalid payload JSON: %w", err)
	}
	return payload.Encode(value)
}

func decodePayload(data []byte) (string, error) {
	var value any
	if err := payload.Decode(data, &value); err != nil {
		return "", err
	}
	rendered, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(rendered), nil
}
