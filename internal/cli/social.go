package cli

import (
	"github.com/spf13/cobra"

	"github.com/brewmap/brewmap/internal/domain"
)

func (e *env) followCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "follow USER",
		Short: "Follow a user by username or id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, s, err := e.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			p, err := e.resolveUser(ctx, args[0])
			if err != nil {
				return err
			}
			if err := e.app.Followers.FollowUser(ctx, s.User.ID, p.ID); err != nil {
				return err
			}
			e.out.Success("following @%s", p.Username)
			return nil
		},
	}
}

func (e *env) unfollowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unfollow USER",
		Short: "Stop following a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, s, err := e.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			p, err := e.resolveUser(ctx, args[0])
			if err != nil {
				return err
			}
			if err := e.app.Followers.UnfollowUser(ctx, s.User.ID, p.ID); err != nil {
				return err
			}
			e.out.Success("unfollowed @%s", p.Username)
			return nil
		},
	}
}

func (e *env) feedCommand() *cobra.Command {
	var (
		limit  int
		cursor string
		user   string
	)
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Show recent activity from the people you follow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				page *domain.Feed
				err  error
			)
			if user != "" {
				ctx, _ := e.optionalUser(cmd.Context())
				p, rerr := e.resolveUser(ctx, user)
				if rerr != nil {
					return rerr
				}
				page, err = e.app.Feed.GetUserActivity(ctx, p.ID, limit, cursor)
			} else {
				ctx, s, serr := e.signedIn(cmd.Context())
				if serr != nil {
					return serr
				}
				page, err = e.app.Feed.GetFriendsFeed(ctx, s.User.ID, limit, cursor)
			}
			if err != nil {
				return err
			}
			return e.printFeed(page)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "items per page (server default when zero)")
	cmd.Flags().StringVar(&cursor, "cursor", "", "continue after a previous page")
	cmd.Flags().StringVar(&user, "user", "", "show one user's activity instead")
	return cmd
}

func (e *env) printFeed(page *domain.Feed) error {
	if e.out.JSON() {
		return e.out.Value(page)
	}
	for _, kind := range page.Degraded {
		e.out.Warning("%s activity is temporarily unavailable", kind)
	}
	if len(page.Items) == 0 {
		e.out.Info("nothing new")
		return nil
	}
	rows := make([][]string, 0, len(page.Items))
	for _, it := range page.Items {
		actor := it.ActorID
		if it.Actor != nil {
			actor = "@" + it.Actor.Username
		}
		rows = append(rows, []string{it.RelativeTime, actor, it.Summary, it.Comment})
	}
	if err := e.out.Table([]string{"WHEN", "WHO", "WHAT", "COMMENT"}, rows); err != nil {
		return err
	}
	if page.NextCursor != "" {
		e.out.Info("more: --cursor %s", page.NextCursor)
	}
	return nil
}
