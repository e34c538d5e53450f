// Package jobs runs background maintenance against the platform database.
package jobs

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Tables names the relations the reconciler reads and writes.
type Tables struct {
	Cafes     string
	Upvotes   string
	Downvotes string
}

func (t Tables) validate() error {
	for _, name := range []string{t.Cafes, t.Upvotes, t.Downvotes} {
		if !identPattern.MatchString(name) {
			return fmt.Errorf("invalid table name %q", name)
		}
	}
	return nil
}

// Drift is a cafe whose stored counters disagree with its vote rows.
type Drift struct {
	CafeID          string `db:"id"`
	Name            string `db:"name"`
	Upvotes         int    `db:"upvotes"`
	Downvotes       int    `db:"downvotes"`
	ActualUpvotes   int    `db:"actual_upvotes"`
	ActualDownvotes int    `db:"actual_downvotes"`
}

// TallyReconciler recomputes cafe vote counters from the vote tables.
type TallyReconciler struct {
	db     *sqlx.DB
	tables Tables

	driftQuery     string
	reconcileQuery string
}

// Open connects to a Postgres DSN.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	db.SetMaxOpenConns(2)
	return db, nil
}

// NewTallyReconciler builds a reconciler over db.
func NewTallyReconciler(db *sqlx.DB, tables Tables) (*TallyReconciler, error) {
	if tables.Cafes == "" {
		tables.Cafes = "cafes"
	}
	if err := tables.validate(); err != nil {
		return nil, err
	}

	tallies := fmt.Sprintf(`WITH tallies AS (
	SELECT c.id,
		(SELECT count(*) FROM public.%[2]s u WHERE u.cafe_id = c.id) AS actual_upvotes,
		(SELECT count(*) FROM public.%[3]s d WHERE d.cafe_id = c.id) AS actual_downvotes
	FROM public.%[1]s c
)`, tables.Cafes, tables.Upvotes, tables.Downvotes)

	return &TallyReconciler{
		db:     db,
		tables: tables,
		driftQuery: tallies + fmt.Sprintf(`
SELECT c.id, c.name, c.upvotes, c.downvotes, t.actual_upvotes, t.actual_downvotes
FROM public.%s c JOIN tallies t ON t.id = c.id
WHERE c.upvotes IS DISTINCT FROM t.actual_upvotes
   OR c.downvotes IS DISTINCT FROM t.actual_downvotes
ORDER BY c.name`, tables.Cafes),
		reconcileQuery: tallies + fmt.Sprintf(`
UPDATE public.%s c
SET upvotes = t.actual_upvotes, downvotes = t.actual_downvotes
FROM tallies t
WHERE c.id = t.id
  AND (c.upvotes IS DISTINCT FROM t.actual_upvotes
    OR c.downvotes IS DISTINCT FROM t.actual_downvotes)`, tables.Cafes),
	}, nil
}

// Drift lists cafes whose counters are out of date without changing them.
func (r *TallyReconciler) Drift(ctx context.Context) ([]Drift, error) {
	var out []Drift
	if err := r.db.SelectContext(ctx, &out, r.driftQuery); err != nil {
		return nil, fmt.Errorf("query vote drift: %w", err)
	}
	return out, nil
}

// Reconcile corrects every drifted cafe in one statement and returns how
// many rows changed.
func (r *TallyReconciler) Reconcile(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, r.reconcileQuery)
	if err != nil {
		return 0, fmt.Errorf("reconcile vote tallies: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reconcile vote tallies: %w", err)
	}
	return int(n), nil
}
