package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// --- Rooms ---

// CreateRoom inserts a room and joins its creator as the first participant.
// A code collision returns ErrConflict so the caller can retry with a new code.
func (s *Store) CreateRoom(ctx context.Context, r Room) (Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Room{}, fmt.Errorf("beginning room transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.timestamp()
	_, err = tx.ExecContext(ctx, `INSERT INTO rooms (id, code, created_by, created_at) VALUES (?, ?, ?, ?)`,
		r.ID, r.Code, r.CreatedBy, now)
	if isUniqueViolation(err) {
		return Room{}, ErrConflict
	}
	if err != nil {
		return Room{}, fmt.Errorf("inserting room: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO room_participants (room_id, person_id, seq, joined_at) VALUES (?, ?, 1, ?)`,
		r.ID, r.CreatedBy, now); err != nil {
		return Room{}, fmt.Errorf("joining creator: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Room{}, err
	}
	r.CreatedAt, _ = parseTime(now)
	return r, nil
}

func (s *Store) GetRoomByCode(ctx context.Context, code string) (Room, error) {
	var r Room
	var createdAt string
	err := s.db.QueryRowContext(ctx, `SELECT id, code, created_by, created_at FROM rooms WHERE code = ?`, code).
		Scan(&r.ID, &r.Code, &r.CreatedBy, &createdAt)
	if err == sql.ErrNoRows {
		return Room{}, ErrNotFound
	}
	if err != nil {
		return Room{}, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return Room{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return r, nil
}

func (s *Store) GetRoom(ctx context.Context, id string) (Room, error) {
	var r Room
	var createdAt string
	err := s.db.QueryRowContext(ctx, `SELECT id, code, created_by, created_at FROM rooms WHERE id = ?`, id).
		Scan(&r.ID, &r.Code, &r.CreatedBy, &createdAt)
	if err == sql.ErrNoRows {
		return Room{}, ErrNotFound
	}
	if err != nil {
		return Room{}, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return Room{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return r, nil
}

// ListRoomCodes returns every room code, oldest room first.
func (s *Store) ListRoomCodes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code FROM rooms ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// RoomsForPerson returns the codes of every room personID has joined.
func (s *Store) RoomsForPerson(ctx context.Context, personID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.code FROM room_participants rp
		JOIN rooms r ON r.id = rp.room_id
		WHERE rp.person_id = ?
		ORDER BY rp.joined_at ASC`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// JoinRoom appends personID to the room's membership. Joining again is a
// no-op; the returned bool reports whether a new membership was recorded.
func (s *Store) JoinRoom(ctx context.Context, roomID, personID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO room_participants (room_id, person_id, seq, joined_at)
		SELECT ?, ?, COALESCE(MAX(seq), 0) + 1, ?
		FROM room_participants WHERE room_id = ?
		ON CONFLICT(room_id, person_id) DO NOTHING`,
		roomID, personID, s.timestamp(), roomID)
	if err != nil {
		return false, fmt.Errorf("joining room: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) IsParticipant(ctx context.Context, roomID, personID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM room_participants WHERE room_id = ? AND person_id = ?`, roomID, personID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListMembers returns the room's participants in join order together with
// their profiles (empty when never saved).
func (s *Store) ListMembers(ctx context.Context, roomID string) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.email, p.created_at, rp.joined_at,
			COALESCE(pr.headline, ''), COALESCE(pr.bio, ''), COALESCE(pr.interests, ''),
			COALESCE(pr.looking_for, ''), pr.embedding, pr.updated_at
		FROM room_participants rp
		JOIN people p ON p.id = rp.person_id
		LEFT JOIN profiles pr ON pr.person_id = rp.person_id
		WHERE rp.room_id = ?
		ORDER BY rp.seq ASC`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		var createdAt, joinedAt string
		var updatedAt sql.NullString
		var blob []byte
		if err := rows.Scan(&m.Person.ID, &m.Person.Name, &m.Person.Email, &createdAt, &joinedAt,
			&m.Profile.Headline, &m.Profile.Bio, &m.Profile.Interests, &m.Profile.LookingFor,
			&blob, &updatedAt); err != nil {
			return nil, err
		}
		m.Profile.PersonID = m.Person.ID
		if m.Person.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if m.JoinedAt, err = parseTime(joinedAt); err != nil {
			return nil, fmt.Errorf("parsing joined_at: %w", err)
		}
		if ts, err := parseNullTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		} else if ts != nil {
			m.Profile.UpdatedAt = *ts
		}
		if m.Profile.Embedding, err = decodeEmbedding(blob); err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", m.Person.ID, err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
