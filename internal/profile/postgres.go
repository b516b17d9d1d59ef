package profile

import (
	"context"
	"database/sql"
	"fmt"
)

// Postgres is the production Store backed by the participants table.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a profile store on the given database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// GetOrCreate inserts a default record if none exists, then reads the
// current row. The insert-then-select pair keeps the read authoritative
// even if another writer created the row first.
func (s *Postgres) GetOrCreate(ctx context.Context, id string) (*Participant, error) {
	const insert = `
		INSERT INTO participants (id, nickname, role, banned, xp)
		VALUES ($1, $2, 'user', FALSE, 0)
		ON CONFLICT (id) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, insert, id, DefaultNickname(id)); err != nil {
		return nil, fmt.Errorf("profile: create %s: %w", id, err)
	}

	const query = `
		SELECT id, nickname, role, banned, xp
		FROM participants WHERE id = $1`

	var p Participant
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Nickname, &p.Role, &p.Banned, &p.XP)
	if err != nil {
		return nil, fmt.Errorf("profile: get %s: %w", id, err)
	}
	return &p, nil
}

// Save upserts the whole record.
func (s *Postgres) Save(ctx context.Context, p *Participant) error {
	const query = `
		INSERT INTO participants (id, nickname, role, banned, xp)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET nickname = EXCLUDED.nickname,
		    role     = EXCLUDED.role,
		    banned   = EXCLUDED.banned,
		    xp       = EXCLUDED.xp`

	if _, err := s.db.ExecContext(ctx, query, p.ID, p.Nickname, p.Role, p.Banned, p.XP); err != nil {
		return fmt.Errorf("profile: save %s: %w", p.ID, err)
	}
	return nil
}

// ListAll returns every participant ordered by id.
func (s *Postgres) ListAll(ctx context.Context) ([]*Participant, error) {
	const query = `
		SELECT id, nickname, role, banned, xp
		FROM participants ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("profile: list: %w", err)
	}
	defer rows.Close()

	var out []*Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.ID, &p.Nickname, &p.Role, &p.Banned, &p.XP); err != nil {
			return nil, fmt.Errorf("profile: scan: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("profile: rows: %w", err)
	}
	return out, nil
}
