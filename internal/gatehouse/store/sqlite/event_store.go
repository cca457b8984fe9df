package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	dbpkg "github.com/BrandonDHaskell/gatehouse/internal/db"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
)

// EventStore persists the gate access log in gate_events.
type EventStore struct {
	db     *sqlx.DB
	writer *dbpkg.Worker
}

func NewEventStore(db *sqlx.DB, writer *dbpkg.Worker) *EventStore {
	return &EventStore{db: db, writer: writer}
}

var _ store.GateEventStore = (*EventStore)(nil)

func (s *EventStore) AppendEvent(ctx context.Context, ev types.GateEvent) error {
	row := toEventRow(ev)
	return s.writer.Do(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, `
INSERT INTO gate_events(`+eventCols+`)
VALUES (:id, :tenant_id, :session_id, :vehicle_id, :resident_id, :visitor_id, :kind, :actor_id,
  :details, :success, :occurred_at_ms);`, row); err != nil {
			return fmt.Errorf("AppendEvent: %w", mapErr(err))
		}
		return nil
	})
}

// ListEvents returns matching events newest first.
func (s *EventStore) ListEvents(ctx context.Context, tenantID string, f store.EventFilter, p store.Page) ([]types.GateEvent, int, error) {
	p = p.Normalize()
	where := []string{"tenant_id = ?"}
	args := []any{tenantID}
	for _, c := range []struct{ col, val string }{
		{"session_id", f.SessionID},
		{"vehicle_id", f.VehicleID},
		{"visitor_id", f.VisitorID},
		{"kind", string(f.Kind)},
	} {
		if c.val != "" {
			where = append(where, c.col+" = ?")
			args = append(args, c.val)
		}
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM gate_events WHERE `+cond+`;`, args...); err != nil {
		return nil, 0, fmt.Errorf("ListEvents count: %w", err)
	}

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, `
SELECT `+eventCols+` FROM gate_events WHERE `+cond+`
ORDER BY seq DESC
LIMIT ? OFFSET ?;`, append(args, p.Limit, p.Offset)...); err != nil {
		return nil, 0, fmt.Errorf("ListEvents: %w", err)
	}

	out := make([]types.GateEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEvent())
	}
	return out, total, nil
}
