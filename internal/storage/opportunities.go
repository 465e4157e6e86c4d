package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// --- Opportunities ---

const opportunityColumns = `id, room_id, person_a, person_b, status, score, rationale, transcript,
	intro_a, intro_b, question_a, question_b, decision_a, decision_b, answer_a, answer_b,
	proposal_notified_a_at, proposal_notified_b_at, accepted_notified_a_at, accepted_notified_b_at,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOpportunity(row rowScanner) (Opportunity, error) {
	var o Opportunity
	var transcript, createdAt, updatedAt string
	var propA, propB, accA, accB sql.NullString
	err := row.Scan(&o.ID, &o.RoomID, &o.PersonA, &o.PersonB, &o.Status, &o.Score, &o.Rationale, &transcript,
		&o.IntroA, &o.IntroB, &o.QuestionA, &o.QuestionB, &o.DecisionA, &o.DecisionB, &o.AnswerA, &o.AnswerB,
		&propA, &propB, &accA, &accB, &createdAt, &updatedAt)
	if err != nil {
		return Opportunity{}, err
	}
	if err := json.Unmarshal([]byte(transcript), &o.Transcript); err != nil {
		return Opportunity{}, fmt.Errorf("decoding transcript for %s: %w", o.ID, err)
	}
	if o.ProposalNotifiedAAt, err = parseNullTime(propA); err != nil {
		return Opportunity{}, err
	}
	if o.ProposalNotifiedBAt, err = parseNullTime(propB); err != nil {
		return Opportunity{}, err
	}
	if o.AcceptedNotifiedAAt, err = parseNullTime(accA); err != nil {
		return Opportunity{}, err
	}
	if o.AcceptedNotifiedBAt, err = parseNullTime(accB); err != nil {
		return Opportunity{}, err
	}
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return Opportunity{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Opportunity{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return o, nil
}

// CreateOpportunity inserts a new evaluated pair. PersonA must sort before
// PersonB. If the (room, pair) triple already exists ErrConflict is returned
// and nothing is written.
func (s *Store) CreateOpportunity(ctx context.Context, o Opportunity) (Opportunity, error) {
	if o.PersonA >= o.PersonB {
		return Opportunity{}, fmt.Errorf("opportunity pair %q/%q is not canonical", o.PersonA, o.PersonB)
	}
	if o.Transcript == nil {
		o.Transcript = []Turn{}
	}
	transcript, err := json.Marshal(o.Transcript)
	if err != nil {
		return Opportunity{}, fmt.Errorf("encoding transcript: %w", err)
	}

	now := s.timestamp()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO opportunities (id, room_id, person_a, person_b, status, score, rationale, transcript,
			intro_a, intro_b, question_a, question_b, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.RoomID, o.PersonA, o.PersonB, o.Status, o.Score, o.Rationale, string(transcript),
		o.IntroA, o.IntroB, o.QuestionA, o.QuestionB, now, now,
	)
	if isUniqueViolation(err) {
		return Opportunity{}, ErrConflict
	}
	if err != nil {
		return Opportunity{}, fmt.Errorf("inserting opportunity: %w", err)
	}
	o.CreatedAt, _ = parseTime(now)
	o.UpdatedAt = o.CreatedAt
	return o, nil
}

func (s *Store) GetOpportunity(ctx context.Context, id string) (Opportunity, error) {
	o, err := scanOpportunity(s.db.QueryRowContext(ctx,
		`SELECT `+opportunityColumns+` FROM opportunities WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Opportunity{}, ErrNotFound
	}
	return o, err
}

// OpportunityExists reports whether the canonical pair (a, b) has ever been
// evaluated in the room.
func (s *Store) OpportunityExists(ctx context.Context, roomID, a, b string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM opportunities WHERE room_id = ? AND person_a = ? AND person_b = ?`,
		roomID, a, b).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateOpportunity loads the opportunity, hands it to mutate and writes the
// decision, answer and status columns back in the same transaction. An
// error from mutate aborts the update and is returned unchanged.
func (s *Store) UpdateOpportunity(ctx context.Context, id string, mutate func(*Opportunity) error) (Opportunity, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Opportunity{}, fmt.Errorf("beginning opportunity transaction: %w", err)
	}
	defer tx.Rollback()

	o, err := scanOpportunity(tx.QueryRowContext(ctx,
		`SELECT `+opportunityColumns+` FROM opportunities WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Opportunity{}, ErrNotFound
	}
	if err != nil {
		return Opportunity{}, err
	}

	if err := mutate(&o); err != nil {
		return Opportunity{}, err
	}

	now := s.timestamp()
	if _, err := tx.ExecContext(ctx, `
		UPDATE opportunities SET status = ?, decision_a = ?, decision_b = ?, answer_a = ?, answer_b = ?, updated_at = ?
		WHERE id = ?`,
		o.Status, o.DecisionA, o.DecisionB, o.AnswerA, o.AnswerB, now, o.ID); err != nil {
		return Opportunity{}, fmt.Errorf("updating opportunity: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Opportunity{}, err
	}
	o.UpdatedAt, _ = parseTime(now)
	return o, nil
}

func notifyColumn(event NotifyEvent, side Side) (string, error) {
	switch {
	case event == NotifyProposal && side == SideA:
		return "proposal_notified_a_at", nil
	case event == NotifyProposal && side == SideB:
		return "proposal_notified_b_at", nil
	case event == NotifyAccepted && side == SideA:
		return "accepted_notified_a_at", nil
	case event == NotifyAccepted && side == SideB:
		return "accepted_notified_b_at", nil
	}
	return "", fmt.Errorf("unknown notification %q/%q", event, side)
}

// MarkNotified stamps the per-side notification guard if it is still unset.
// It reports whether this call set it. Notification timestamps never touch
// updated_at, so they do not reorder room views.
func (s *Store) MarkNotified(ctx context.Context, id string, event NotifyEvent, side Side) (bool, error) {
	col, err := notifyColumn(event, side)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE opportunities SET `+col+` = ? WHERE id = ? AND `+col+` IS NULL`, s.timestamp(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListOpportunitiesForPerson returns the room's opportunities involving
// personID whose status is one of statuses, most recently updated first.
func (s *Store) ListOpportunitiesForPerson(ctx context.Context, roomID, personID string, statuses []string) ([]Opportunity, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat(",?", len(statuses)-1)
	args := []any{roomID, personID, personID}
	for _, st := range statuses {
		args = append(args, st)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+opportunityColumns+` FROM opportunities
		WHERE room_id = ? AND (person_a = ? OR person_b = ?) AND status IN (?`+placeholders+`)
		ORDER BY updated_at DESC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CountOpportunities returns the number of evaluated pairs in a room, by status.
func (s *Store) CountOpportunities(ctx context.Context, roomID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM opportunities WHERE room_id = ? GROUP BY status`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[st] = n
	}
	return counts, rows.Err()
}
