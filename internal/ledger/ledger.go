package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dome/adamant-tradebot/internal/models"
)

// ErrNotFound is returned when a lookup by internal id matches no row.
var ErrNotFound = errors.New("ledger: order not found")

// Ledger is the append- and update-only store of every order this
// agent has placed. It is keyed by the database row id (InternalID),
// stable across process restarts, and every Update is a single-row
// atomic statement keyed by that id.
type Ledger struct {
	db *sql.DB
}

// New wraps an already-open database handle. Schema migration is the
// operator's responsibility; this package does not create the
// ledger_orders table.
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Insert assigns InternalID and CreatedAt/UpdatedAt and persists order.
func (l *Ledger) Insert(ctx context.Context, order *models.Order) error {
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now

	const query = `
		INSERT INTO ledger_orders (
			exchange_order_id, pair, side, type, purpose, state,
			created_at, expires_at, updated_at,
			price, base_amount, quote_amount, base_filled, quote_filled,
			base_remaining, quote_remaining,
			processed, executed, cancelled, closed,
			ladder_index, ladder_state, not_placed_reason, closure_cause
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12, $13, $14,
			$15, $16,
			$17, $18, $19, $20,
			$21, $22, $23, $24
		) RETURNING id`

	return l.db.QueryRowContext(ctx, query,
		order.ExchangeOrderID, order.Pair, order.Side, order.Type, order.Purpose, order.State,
		order.CreatedAt, order.ExpiresAt, order.UpdatedAt,
		order.Price, order.BaseAmount, order.QuoteAmount, order.BaseFilled, order.QuoteFilled,
		order.BaseRemaining, order.QuoteRemaining,
		order.Processed, order.Executed, order.Cancelled, order.Closed,
		order.LadderIndex, order.LadderState, order.NotPlacedReason, order.ClosureCause,
	).Scan(&order.InternalID)
}

// Patch is a sparse set of field updates applied atomically to one
// ledger row. Nil fields are left untouched.
type Patch struct {
	ExchangeOrderID *string
	State           *models.State
	BaseFilled      *decimal.Decimal
	QuoteFilled     *decimal.Decimal
	BaseRemaining   *decimal.Decimal
	QuoteRemaining  *decimal.Decimal
	Processed       *bool
	Executed        *bool
	Cancelled       *bool
	Closed          *bool
	LadderState     *models.LadderState
	ClosureCause    *models.ClosureCause
	MissedObs       *int
}

// Update applies patch to the row identified by id in a single
// statement; safe to retry, since re-applying the same patch values is
// idempotent.
func (l *Ledger) Update(ctx context.Context, id int64, patch Patch) error {
	sets := make([]string, 0, 12)
	args := make([]interface{}, 0, 12)
	add := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.ExchangeOrderID != nil {
		add("exchange_order_id", *patch.ExchangeOrderID)
	}
	if patch.State != nil {
		add("state", *patch.State)
	}
	if patch.BaseFilled != nil {
		add("base_filled", *patch.BaseFilled)
	}
	if patch.QuoteFilled != nil {
		add("quote_filled", *patch.QuoteFilled)
	}
	if patch.BaseRemaining != nil {
		add("base_remaining", *patch.BaseRemaining)
	}
	if patch.QuoteRemaining != nil {
		add("quote_remaining", *patch.QuoteRemaining)
	}
	if patch.Processed != nil {
		add("processed", *patch.Processed)
	}
	if patch.Executed != nil {
		add("executed", *patch.Executed)
	}
	if patch.Cancelled != nil {
		add("cancelled", *patch.Cancelled)
	}
	if patch.Closed != nil {
		add("closed", *patch.Closed)
	}
	if patch.LadderState != nil {
		add("ladder_state", *patch.LadderState)
	}
	if patch.ClosureCause != nil {
		add("closure_cause", *patch.ClosureCause)
	}
	if patch.MissedObs != nil {
		add("missed_observations", *patch.MissedObs)
	}

	if len(sets) == 0 {
		return nil
	}
	add("updated_at", time.Now())

	query := "UPDATE ledger_orders SET " + joinComma(sets) + fmt.Sprintf(" WHERE id = $%d", len(args)+1)
	args = append(args, id)

	result, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func joinComma(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}

const selectColumns = `
	id, exchange_order_id, pair, side, type, purpose, state,
	created_at, expires_at, updated_at,
	price, base_amount, quote_amount, base_filled, quote_filled,
	base_remaining, quote_remaining,
	processed, executed, cancelled, closed,
	ladder_index, ladder_state, not_placed_reason, closure_cause, missed_observations`

func scanOrder(row interface{ Scan(...interface{}) error }) (*models.Order, error) {
	o := &models.Order{}
	err := row.Scan(
		&o.InternalID, &o.ExchangeOrderID, &o.Pair, &o.Side, &o.Type, &o.Purpose, &o.State,
		&o.CreatedAt, &o.ExpiresAt, &o.UpdatedAt,
		&o.Price, &o.BaseAmount, &o.QuoteAmount, &o.BaseFilled, &o.QuoteFilled,
		&o.BaseRemaining, &o.QuoteRemaining,
		&o.Processed, &o.Executed, &o.Cancelled, &o.Closed,
		&o.LadderIndex, &o.LadderState, &o.NotPlacedReason, &o.ClosureCause, &o.MissedObservations,
	)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// FindByID returns one order by its internal id.
func (l *Ledger) FindByID(ctx context.Context, id int64) (*models.Order, error) {
	query := `SELECT ` + selectColumns + ` FROM ledger_orders WHERE id = $1`
	row := l.db.QueryRowContext(ctx, query, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

// FindOpen returns every closed=false order for pair, optionally
// filtered to one purpose ("" matches any purpose).
func (l *Ledger) FindOpen(ctx context.Context, purpose models.Purpose, pair string) ([]*models.Order, error) {
	query := `SELECT ` + selectColumns + ` FROM ledger_orders WHERE pair = $1 AND closed = false`
	args := []interface{}{pair}
	if purpose != "" {
		query += ` AND purpose = $2`
		args = append(args, purpose)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// windowCutoff returns the earliest CreatedAt a row must have to be
// included in window, or the zero time for WindowAll.
func windowCutoff(window models.StatsWindow, now time.Time) time.Time {
	switch window {
	case models.WindowHour:
		return now.Add(-time.Hour)
	case models.WindowDay:
		return now.AddDate(0, 0, -1)
	case models.WindowMonth:
		return now.AddDate(0, -1, 0)
	default:
		return time.Time{}
	}
}

// StatsByPurpose aggregates placed/filled/cancelled counts and
// traded volume for pair, one row per requested purpose, within window.
func (l *Ledger) StatsByPurpose(ctx context.Context, pair string, purposes []models.Purpose, window models.StatsWindow) ([]models.PurposeStat, error) {
	cutoff := windowCutoff(window, time.Now())

	out := make([]models.PurposeStat, 0, len(purposes))
	for _, p := range purposes {
		query := `
			SELECT
				COUNT(*) AS placed,
				COUNT(*) FILTER (WHERE state = $3) AS filled,
				COUNT(*) FILTER (WHERE state = $4) AS cancelled,
				COALESCE(SUM(base_filled), 0) AS vol_base,
				COALESCE(SUM(quote_filled), 0) AS vol_quote
			FROM ledger_orders
			WHERE pair = $1 AND purpose = $2 AND created_at >= $5`

		row := l.db.QueryRowContext(ctx, query, pair, p, models.StateFilled, models.StateClosed, cutoff)

		var stat models.PurposeStat
		var volBase, volQuote decimal.Decimal
		if err := row.Scan(&stat.OrdersPlaced, &stat.OrdersFilled, &stat.OrdersCancelled, &volBase, &volQuote); err != nil {
			return nil, err
		}
		stat.Pair = pair
		stat.Purpose = p
		stat.Window = window
		stat.VolumeBase = volBase
		stat.VolumeQuote = volQuote
		out = append(out, stat)
	}
	return out, nil
}
