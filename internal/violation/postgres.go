package violation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/anonychat/orchestrator/internal/transcript"
)

// Postgres is the production violation log backed by the violations table.
// The transcript snapshot is stored as JSONB.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a violation store on the given database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Append(ctx context.Context, v Violation) error {
	if err := validate(v); err != nil {
		return err
	}

	var snapshot []byte
	if len(v.Transcript) > 0 {
		var err error
		snapshot, err = json.Marshal(v.Transcript)
		if err != nil {
			return fmt.Errorf("violation: marshal transcript: %w", err)
		}
	}

	const query = `
		INSERT INTO violations (ts, kind, participant_id, nickname, room_id, message, transcript)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(ctx, query,
		v.Ts, v.Kind, v.ParticipantID, v.Nickname, v.RoomID, v.Message, snapshot)
	if err != nil {
		return fmt.Errorf("violation: insert: %w", err)
	}
	return nil
}

func (s *Postgres) ListAll(ctx context.Context) ([]Violation, error) {
	const query = `
		SELECT ts, kind, participant_id, nickname, room_id, message, transcript
		FROM violations ORDER BY ts`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("violation: list: %w", err)
	}
	defer rows.Close()

	var out []Violation
	for rows.Next() {
		var v Violation
		var snapshot []byte
		if err := rows.Scan(&v.Ts, &v.Kind, &v.ParticipantID, &v.Nickname,
			&v.RoomID, &v.Message, &snapshot); err != nil {
			return nil, fmt.Errorf("violation: scan: %w", err)
		}
		if len(snapshot) > 0 {
			var entries []transcript.Entry
			if err := json.Unmarshal(snapshot, &entries); err != nil {
				return nil, fmt.Errorf("violation: unmarshal transcript: %w", err)
			}
			v.Transcript = entries
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("violation: rows: %w", err)
	}
	return out, nil
}
