package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/internal/present"
	"github.com/brewmap/brewmap/services/cafes"
)

func (e *env) printCafes(rows []domain.Cafe) error {
	if e.out.JSON() {
		return e.out.Value(rows)
	}
	if len(rows) == 0 {
		e.out.Info("no cafes found")
		return nil
	}
	table := make([][]string, 0, len(rows))
	for _, c := range rows {
		table = append(table, []string{
			c.ID,
			c.Name,
			c.Location.City,
			yesNo(c.Wifi),
			yesNo(c.PowerOutletAvailable),
			fmt.Sprintf("+%s / -%s", present.Count(c.Upvotes), present.Count(c.Downvotes)),
		})
	}
	return e.out.Table([]string{"ID", "NAME", "CITY", "WIFI", "OUTLETS", "VOTES"}, table)
}

func (e *env) cafesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cafes",
		Short: "Browse and vote on cafes",
	}
	cmd.AddCommand(
		e.cafesListCommand(),
		e.cafesSearchCommand(),
		e.cafesShowCommand(),
		e.voteCommand(domain.VoteUp),
		e.voteCommand(domain.VoteDown),
		e.reviewCommand(),
		e.bookmarkCommand(),
	)
	return cmd
}

func (e *env) cafesListCommand() *cobra.Command {
	var f cafes.Filter
	var wifi, outlets bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cafes, most upvoted first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("wifi") {
				f.Wifi = &wifi
			}
			if cmd.Flags().Changed("power-outlet") {
				f.PowerOutlet = &outlets
			}
			ctx, _ := e.optionalUser(cmd.Context())
			rows, err := e.app.Cafes.ListCafes(ctx, f)
			if err != nil {
				return err
			}
			return e.printCafes(rows)
		},
	}
	cmd.Flags().StringVar(&f.City, "city", "", "only cafes in this city")
	cmd.Flags().BoolVar(&wifi, "wifi", false, "filter on wifi")
	cmd.Flags().BoolVar(&outlets, "power-outlet", false, "filter on power outlets")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "page size")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "rows to skip")
	return cmd
}

func (e *env) cafesSearchCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search cafes by name, description or city",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, _ := e.optionalUser(cmd.Context())
			rows, err := e.app.Cafes.SearchCafes(ctx, args[0], limit)
			if err != nil {
				return err
			}
			return e.printCafes(rows)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum results")
	return cmd
}

func (e *env) cafesShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a cafe with its review summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, _ := e.optionalUser(cmd.Context())
			var (
				cafe    *domain.Cafe
				summary *domain.ReviewSummary
			)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() (err error) {
				cafe, err = e.app.Cafes.GetCafe(gctx, args[0])
				return err
			})
			g.Go(func() (err error) {
				summary, err = e.app.Reviews.Summary(gctx, args[0])
				return err
			})
			if err := g.Wait(); err != nil {
				return err
			}
			if e.out.JSON() {
				return e.out.Value(map[string]any{"cafe": cafe, "reviews": summary})
			}
			e.out.Line("%s", e.out.bold(cafe.Name))
			if cafe.Description != "" {
				e.out.Line("%s", cafe.Description)
			}
			return e.out.Table([]string{"FIELD", "VALUE"}, [][]string{
				{"address", cafe.Location.Address},
				{"city", cafe.Location.City},
				{"wifi", yesNo(cafe.Wifi)},
				{"power outlets", yesNo(cafe.PowerOutletAvailable)},
				{"votes", fmt.Sprintf("+%d / -%d", cafe.Upvotes, cafe.Downvotes)},
				{"reviews", fmt.Sprintf("%d (%s%% positive)", summary.Total, strconv.FormatFloat(summary.PercentPositive, 'f', 1, 64))},
				{"images", strconv.Itoa(len(cafe.ImageURLs))},
			})
		},
	}
}

func (e *env) voteCommand(kind domain.VoteKind) *cobra.Command {
	return &cobra.Command{
		Use:   string(kind) + " ID",
		Short: fmt.Sprintf("Toggle your %s on a cafe", kind),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, s, err := e.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			vote := e.app.Cafes.Upvote
			if kind == domain.VoteDown {
				vote = e.app.Cafes.Downvote
			}
			st, err := vote(ctx, s.User.ID, args[0])
			if err != nil {
				return err
			}
			if e.out.JSON() {
				return e.out.Value(st)
			}
			if st.Vote == domain.VoteNone {
				e.out.Success("vote removed (+%d / -%d)", st.Upvotes, st.Downvotes)
			} else {
				e.out.Success("%s recorded (+%d / -%d)", st.Vote, st.Upvotes, st.Downvotes)
			}
			return nil
		},
	}
}

func (e *env) reviewCommand() *cobra.Command {
	var positive, negative bool
	var comment string
	cmd := &cobra.Command{
		Use:   "review ID",
		Short: "Review a cafe, replacing your earlier review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if positive == negative {
				return fmt.Errorf("pass exactly one of --positive or --negative")
			}
			ctx, s, err := e.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			r, created, err := e.app.Reviews.AddReview(ctx, s.User.ID, args[0], positive, comment)
			if err != nil {
				return err
			}
			if e.out.JSON() {
				return e.out.Value(r)
			}
			if created {
				e.out.Success("review added")
			} else {
				e.out.Success("review updated")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&positive, "positive", false, "recommend the cafe")
	cmd.Flags().BoolVar(&negative, "negative", false, "do not recommend the cafe")
	cmd.Flags().StringVar(&comment, "comment", "", "optional comment")
	return cmd
}

func (e *env) bookmarkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bookmark ID",
		Short: "Toggle a bookmark on a cafe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, s, err := e.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			on, err := e.app.Bookmarks.ToggleBookmark(ctx, s.User.ID, args[0])
			if err != nil {
				return err
			}
			if e.out.JSON() {
				return e.out.Value(map[string]any{"cafe_id": args[0], "bookmarked": on})
			}
			if on {
				e.out.Success("bookmarked")
			} else {
				e.out.Success("bookmark removed")
			}
			return nil
		},
	}
}

func (e *env) bookmarksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bookmarks",
		Short: "List your bookmarked cafes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, s, err := e.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			marks, err := e.app.Bookmarks.GetUserBookmarks(ctx, s.User.ID)
			if err != nil {
				return err
			}
			if e.out.JSON() {
				return e.out.Value(marks)
			}
			rows := make([]domain.Cafe, 0, len(marks))
			for _, b := range marks {
				if b.Cafe != nil {
					rows = append(rows, *b.Cafe)
				}
			}
			return e.printCafes(rows)
		},
	}
}
