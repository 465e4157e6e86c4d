package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// --- People ---

func (s *Store) CreatePerson(ctx context.Context, p Person) (Person, error) {
	now := s.now()
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO people (id, name, email, created_at) VALUES (?, ?, ?, ?)`,
		p.ID, p.Name, p.Email, formatTime(now),
	)
	if isUniqueViolation(err) {
		return Person{}, ErrConflict
	}
	if err != nil {
		return Person{}, fmt.Errorf("inserting person: %w", err)
	}
	p.CreatedAt, _ = parseTime(formatTime(now))
	return p, nil
}

func (s *Store) GetPerson(ctx context.Context, id string) (Person, error) {
	var p Person
	var createdAt string
	err := s.db.QueryRowContext(ctx, `SELECT id, name, email, created_at FROM people WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Email, &createdAt)
	if err == sql.ErrNoRows {
		return Person{}, ErrNotFound
	}
	if err != nil {
		return Person{}, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return Person{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return p, nil
}

// GetPeople loads several people at once, keyed by id. Unknown ids are omitted.
func (s *Store) GetPeople(ctx context.Context, ids ...string) (map[string]Person, error) {
	out := make(map[string]Person, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := strings.Repeat(",?", len(ids)-1)
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, created_at FROM people WHERE id IN (?`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p Person
		var createdAt string
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &createdAt); err != nil {
			return nil, err
		}
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}
