package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/internal/present"
	"github.com/brewmap/brewmap/services/submissions"
	"github.com/brewmap/brewmap/supabase/client"
)

const submissionsTable = "cafe_submissions"

func (e *env) printSubmissions(rows []domain.CafeSubmission) error {
	if e.out.JSON() {
		return e.out.Value(rows)
	}
	if len(rows) == 0 {
		e.out.Info("no submissions")
		return nil
	}
	now := e.out.now()
	table := make([][]string, 0, len(rows))
	for _, s := range rows {
		note := s.RejectionReason
		if note == "" {
			note = s.AdminNotes
		}
		table = append(table, []string{
			s.ID,
			s.Name,
			s.Location.City,
			e.out.Color(string(s.Status), present.StatusColor(s.Status)),
			present.RelativeTime(s.CreatedAt, now),
			note,
		})
	}
	return e.out.Table([]string{"ID", "NAME", "CITY", "STATUS", "SUBMITTED", "NOTE"}, table)
}

func (e *env) submissionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "submissions",
		Aliases: []string{"sub"},
		Short:   "Submit cafes and review the moderation queue",
	}
	cmd.AddCommand(
		e.submitCommand(),
		e.mineCommand(),
		e.withdrawCommand(),
		e.queueCommand(),
		e.statsCommand(),
		e.approveCommand(),
		e.rejectCommand(),
		e.watchCommand(),
	)
	return cmd
}

func (e *env) submitCommand() *cobra.Command {
	var (
		in     submissions.Input
		images []string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Propose a new cafe with up to five images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, s, err := e.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			for _, path := range images {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read image: %w", err)
				}
				in.Images = append(in.Images, submissions.Image{Filename: filepath.Base(path), Data: data})
			}

			spin := e.out.Spinner("uploading images")
			spin.Start()
			sub, err := e.app.Submissions.SubmitCafe(ctx, s.User.ID, &in)
			spin.Stop()
			if err != nil {
				return err
			}
			if e.out.JSON() {
				return e.out.Value(sub)
			}
			e.out.Success("submitted %s (%s), pending review", sub.Name, sub.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Name, "name", "", "cafe name")
	f.StringVar(&in.Description, "description", "", "short description")
	f.StringVar(&in.Address, "address", "", "street address")
	f.StringVar(&in.City, "city", "", "city")
	f.StringVar(&in.Country, "country", "", "country")
	f.Float64Var(&in.Lat, "lat", 0, "latitude")
	f.Float64Var(&in.Lng, "lng", 0, "longitude")
	f.BoolVar(&in.Wifi, "wifi", false, "has wifi")
	f.BoolVar(&in.PowerOutletAvailable, "power-outlet", false, "has power outlets")
	f.StringArrayVar(&images, "image", nil, "image file (JPEG, PNG or WebP); repeatable")
	return cmd
}

func (e *env) mineCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "List your submissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, s, err := e.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := e.app.Submissions.GetUserSubmissions(ctx, s.User.ID)
			if err != nil {
				return err
			}
			return e.printSubmissions(rows)
		},
	}
}

func (e *env) withdrawCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw ID",
		Short: "Withdraw one of your pending submissions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, s, err := e.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			if err := e.app.Submissions.WithdrawSubmission(ctx, s.User.ID, args[0]); err != nil {
				return err
			}
			e.out.Success("withdrawn")
			return nil
		},
	}
}

func (e *env) queueCommand() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submissions for review (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, _, err := e.signedInAdmin(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := e.app.Submissions.ListSubmissions(ctx, domain.SubmissionStatus(status))
			if err != nil {
				return err
			}
			return e.printSubmissions(rows)
		},
	}
	cmd.Flags().StringVar(&status, "status", string(domain.SubmissionPending), "pending, approved, rejected, or empty for all")
	return cmd
}

func (e *env) statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count submissions by status (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, _, err := e.signedInAdmin(cmd.Context())
			if err != nil {
				return err
			}
			st, err := e.app.Submissions.Stats(ctx)
			if err != nil {
				return err
			}
			if e.out.JSON() {
				return e.out.Value(st)
			}
			return e.out.Table([]string{"PENDING", "APPROVED", "REJECTED", "TOTAL"}, [][]string{{
				present.Count(st.Pending),
				present.Count(st.Approved),
				present.Count(st.Rejected),
				present.Count(st.Total),
			}})
		},
	}
}

func (e *env) approveCommand() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "approve ID",
		Short: "Approve a pending submission and publish its cafe (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, s, err := e.signedInAdmin(cmd.Context())
			if err != nil {
				return err
			}
			res, err := e.app.Submissions.ApproveSubmission(ctx, s.User.ID, args[0], notes)
			if err != nil {
				return err
			}
			if e.out.JSON() {
				return e.out.Value(res)
			}
			e.out.Success("approved %s; cafe %s published", res.Submission.Name, res.Cafe.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "notes kept with the decision")
	return cmd
}

func (e *env) rejectCommand() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject ID",
		Short: "Reject a pending submission (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, s, err := e.signedInAdmin(cmd.Context())
			if err != nil {
				return err
			}
			sub, err := e.app.Submissions.RejectSubmission(ctx, s.User.ID, args[0], reason)
			if err != nil {
				return err
			}
			if e.out.JSON() {
				return e.out.Value(sub)
			}
			e.out.Success("rejected %s", sub.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason shown to the submitter")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func (e *env) watchCommand() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream submission changes as they happen (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, s, err := e.signedInAdmin(cmd.Context())
			if err != nil {
				return err
			}
			return e.watch(ctx, s.AccessToken, status)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only changes to rows with this status")
	return cmd
}

func (e *env) watch(ctx context.Context, token, status string) error {
	rt := e.app.Client.Realtime(token)
	if err := rt.Connect(ctx); err != nil {
		return err
	}
	defer rt.Disconnect()

	changes := client.PostgresChangesConfig{Event: "*", Table: submissionsTable}
	if status != "" {
		changes.Filter = "status=eq." + status
	}
	_, err := rt.SubscribeToPostgresChanges(ctx, changes, func(ev *client.RealtimeEvent) {
		kind, _, ok := ev.Change()
		if !ok {
			return
		}
		var sub domain.CafeSubmission
		if err := ev.DecodeRecord(&sub); err != nil {
			if e.out.JSON() {
				return
			}
			e.out.Line("%s (row not readable)", strings.ToLower(kind))
			return
		}
		if e.out.JSON() {
			_ = e.out.Value(map[string]any{"type": kind, "submission": sub})
			return
		}
		e.out.Line("%-6s %s  %s  %s", strings.ToLower(kind), sub.ID, e.out.Color(string(sub.Status), present.StatusColor(sub.Status)), sub.Name)
	})
	if err != nil {
		return err
	}
	e.out.Info("watching %s; press Ctrl-C to stop", submissionsTable)

	select {
	case <-ctx.Done():
		return nil
	case <-rt.Done():
		return fmt.Errorf("realtime connection closed")
	}
}
