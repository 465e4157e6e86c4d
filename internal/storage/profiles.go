package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// --- Profiles ---

// GetProfile returns the profile for personID. A person who never saved a
// profile gets an empty one rather than ErrNotFound.
func (s *Store) GetProfile(ctx context.Context, personID string) (Profile, error) {
	var p Profile
	var blob []byte
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT person_id, headline, bio, interests, looking_for, embedding, updated_at
		FROM profiles WHERE person_id = ?`, personID,
	).Scan(&p.PersonID, &p.Headline, &p.Bio, &p.Interests, &p.LookingFor, &blob, &updatedAt)
	if err == sql.ErrNoRows {
		return Profile{PersonID: personID}, nil
	}
	if err != nil {
		return Profile{}, err
	}
	if p.Embedding, err = decodeEmbedding(blob); err != nil {
		return Profile{}, fmt.Errorf("decoding embedding for %s: %w", personID, err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Profile{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return p, nil
}

// SaveProfile upserts the text fields of a profile. When any text field
// differs from the stored value the cached embedding is cleared, so the
// next matchmaking pass re-embeds it. The returned bool reports whether the
// text changed.
func (s *Store) SaveProfile(ctx context.Context, p Profile) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning profile transaction: %w", err)
	}
	defer tx.Rollback()

	var cur Profile
	err = tx.QueryRowContext(ctx, `
		SELECT headline, bio, interests, looking_for FROM profiles WHERE person_id = ?`, p.PersonID,
	).Scan(&cur.Headline, &cur.Bio, &cur.Interests, &cur.LookingFor)
	existed := err == nil
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}

	changed := !existed ||
		cur.Headline != p.Headline || cur.Bio != p.Bio ||
		cur.Interests != p.Interests || cur.LookingFor != p.LookingFor
	if existed && !changed {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO profiles (person_id, headline, bio, interests, looking_for, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, NULL, ?)
		ON CONFLICT(person_id) DO UPDATE SET
			headline = excluded.headline,
			bio = excluded.bio,
			interests = excluded.interests,
			looking_for = excluded.looking_for,
			embedding = NULL,
			updated_at = excluded.updated_at`,
		p.PersonID, p.Headline, p.Bio, p.Interests, p.LookingFor, s.timestamp(),
	)
	if err != nil {
		return false, fmt.Errorf("upserting profile: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// SetEmbedding caches vec on the profile, but only while the stored text
// still equals the text of p the vector was computed from. An edit that
// landed in between yields ErrStale and leaves the embedding cleared.
func (s *Store) SetEmbedding(ctx context.Context, p Profile, vec []float32) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET embedding = ?
		WHERE person_id = ? AND headline = ? AND bio = ? AND interests = ? AND looking_for = ?`,
		encodeEmbedding(vec), p.PersonID, p.Headline, p.Bio, p.Interests, p.LookingFor)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM profiles WHERE person_id = ?)`, p.PersonID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return ErrStale
	}
	return ErrNotFound
}
