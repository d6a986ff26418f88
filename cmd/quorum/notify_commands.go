package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"quorum/internal/api"
	"quorum/internal/approval"
	"quorum/internal/config"
	"quorum/internal/ident"
	"quorum/internal/query"
	"quorum/internal/store"
)

func newNotifyCommand(ctx *commandContext) *cobra.Command {
	notifyCmd := &cobra.Command{
		Use:   "notify",
		Short: "Inspect and act on notifications",
	}

	notifyCmd.AddCommand(newNotifyListCommand(ctx))
	notifyCmd.AddCommand(newNotifyAckCommand(ctx))
	notifyCmd.AddCommand(newNotifyDismissCommand(ctx))
	notifyCmd.AddCommand(newNotifyGroupCommand(ctx))

	return notifyCmd
}

func newNotifyListCommand(ctx *commandContext) *cobra.Command {
	var (
		uidFlag    string
		statusFlag string
		tokenFlag  string
		limitFlag  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a recipient's notifications, newest first",
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

			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				limit := query.Limit(cfg, limitFlag)
				rows, err := st.ListNotifications(cmd.Context(), uid, status, before, limit)
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No notifications")
					return nil
				}

				page := query.PageOf(rows, limit, func(n *store.Notification) ident.ID { return n.TID })
				tableRows := make([][]string, 0, len(page.Items))
				for _, n := range page.Items {
					tableRows = append(tableRows, []string{
						n.TID.String(),
						n.Sender.String(),
						n.Status.String(),
						n.Message,
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(
					[]string{"Task", "Sender", "Status", "Message"},
					tableRows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				))
				if page.NextToken != "" {
					fmt.Fprintf(out, "More notifications available: --token %s\n", page.NextToken)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&uidFlag, "uid", "", "Recipient identifier")
	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by status")
	cmd.Flags().StringVar(&tokenFlag, "token", "", "Resume token from a previous page")
	cmd.Flags().IntVar(&limitFlag, "limit", 0, "Page size")
	_ = cmd.MarkFlagRequired("uid")
	return cmd
}

func newNotifyAckCommand(ctx *commandContext) *cobra.Command {
	var uidFlag, tidFlag, senderFlag, decisionFlag string

	cmd := &cobra.Command{
		Use:   "ack",
		Short: "Acknowledge a notification by voting on its task",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := api.ParseID("uid", uidFlag)
			if err != nil {
				return err
			}
			tid, err := api.ParseID("tid", tidFlag)
			if err != nil {
				return err
			}
			sender, err := api.ParseID("sender", senderFlag)
			if err != nil {
				return err
			}
			decision, err := api.ParseDecision(decisionFlag)
			if err != nil {
				return err
			}

			return ctx.withEngine(func(cfg *config.Config, st *store.Store, eng *approval.Engine) error {
				task, err := eng.Ack(cmd.Context(), uid, tid, sender, decision)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Acknowledged; task is %s (%d/%d approvals)\n",
					task.Status, len(task.Resolved), task.Threshold)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&uidFlag, "uid", "", "Recipient identifier")
	cmd.Flags().StringVar(&tidFlag, "tid", "", "Task identifier")
	cmd.Flags().StringVar(&senderFlag, "sender", "", "Task owner identifier")
	cmd.Flags().StringVar(&decisionFlag, "decision", "approve", "approve or reject")
	_ = cmd.MarkFlagRequired("uid")
	_ = cmd.MarkFlagRequired("tid")
	_ = cmd.MarkFlagRequired("sender")
	return cmd
}

func newNotifyDismissCommand(ctx *commandContext) *cobra.Command {
	var uidFlag, tidFlag, senderFlag string

	cmd := &cobra.Command{
		Use:   "dismiss",
		Short: "Remove a notification without voting",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := api.ParseID("uid", uidFlag)
			if err != nil {
				return err
			}
			tid, err := api.ParseID("tid", tidFlag)
			if err != nil {
				return err
			}
			sender, err := api.ParseID("sender", senderFlag)
			if err != nil {
				return err
			}

			return ctx.withEngine(func(cfg *config.Config, st *store.Store, eng *approval.Engine) error {
				if err := eng.Dismiss(cmd.Context(), uid, tid, sender); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Notification dismissed")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&uidFlag, "uid", "", "Recipient identifier")
	cmd.Flags().StringVar(&tidFlag, "tid", "", "Task identifier")
	cmd.Flags().StringVar(&senderFlag, "sender", "", "Task owner identifier")
	_ = cmd.MarkFlagRequired("uid")
	_ = cmd.MarkFlagRequired("tid")
	_ = cmd.MarkFlagRequired("sender")
	return cmd
}

func newNotifyGroupCommand(ctx *commandContext) *cobra.Command {
	var (
		gidFlag   string
		roleFlag  string
		tokenFlag string
		limitFlag int
	)

	cmd := &cobra.Command{
		Use:   "group",
		Short: "List a group's announcements",
		RunE: func(cmd *cobra.Command, args []string) error {
			gid, err := api.ParseID("gid", gidFlag)
			if err != nil {
				return err
			}
			before, err := query.ParseToken(tokenFlag)
			if err != nil {
				return err
			}

			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				role := store.Role(cfg.Approval.DefaultGroupRole)
				if value := strings.TrimSpace(roleFlag); value != "" {
					parsed, err := strconv.Atoi(value)
					if err != nil || parsed < int(store.RoleMember) || parsed > int(store.RoleOwner) {
						return fmt.Errorf("invalid role %q", value)
					}
					role = store.Role(parsed)
				}

				limit := query.Limit(cfg, limitFlag)
				rows, err := st.ListGroupNotifications(cmd.Context(), gid, role, before, limit)
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No group announcements")
					return nil
				}

				page := query.PageOf(rows, limit, func(g *store.GroupNotification) ident.ID { return g.TID })
				tableRows := make([][]string, 0, len(page.Items))
				for _, g := range page.Items {
					tableRows = append(tableRows, []string{
						g.TID.String(),
						g.Sender.String(),
						g.Role.String(),
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(
					[]string{"Task", "Sender", "Min Role"},
					tableRows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				))
				if page.NextToken != "" {
					fmt.Fprintf(out, "More announcements available: --token %s\n", page.NextToken)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&gidFlag, "gid", "", "Group identifier")
	cmd.Flags().StringVar(&roleFlag, "role", "", "Reader's rank (0 member, 1 admin, 2 owner)")
	cmd.Flags().StringVar(&tokenFlag, "token", "", "Resume token from a previous page")
	cmd.Flags().IntVar(&limitFlag, "limit", 0, "Page size")
	_ = cmd.MarkFlagRequired("gid")
	return cmd
}
