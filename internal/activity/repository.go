package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists activity and audit records in PostgreSQL. Both tables
// are append-only; nothing in this package updates or deletes rows.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new activity Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Append inserts one activity event. Sets ID and CreatedAt on the event.
func (r *Repository) Append(ctx context.Context, e *Event) error {
	e.ID = uuid.New()
	e.CreatedAt = time.Now().UTC()

	var metadata []byte
	if len(e.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
	}

	q := `
		INSERT INTO user_activity (id, user_id, type, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.Exec(ctx, q, e.ID, e.UserID, string(e.Type), e.Message, metadata, e.CreatedAt); err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// AppendAudit inserts one audit entry. Sets ID and CreatedAt on the entry.
func (r *Repository) AppendAudit(ctx context.Context, a *AuditEntry) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now().UTC()
	if a.Severity == "" {
		a.Severity = SeverityInfo
	}

	var actor *string
	if a.ActorUserID != "" {
		actor = &a.ActorUserID
	}

	q := `
		INSERT INTO audit_logs (id, actor_user_id, action, target_user_id, severity, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.Exec(ctx, q,
		a.ID, actor, a.Action, a.TargetUserID, string(a.Severity), a.IP, a.UserAgent, a.CreatedAt,
	); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListByUser returns a user's activity feed, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Event, error) {
	q := `
		SELECT id, user_id, type, message, metadata, created_at
		FROM user_activity
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var e Event
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Message, &metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
