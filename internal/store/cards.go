package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/studyflow/studyflow/internal/content"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type cardRow struct {
	CardID    string `db:"card_id"`
	CourseID  string `db:"course_id"`
	Kind      string `db:"kind"`
	Body      string `db:"body"`
	Tags      string `db:"tags"`
	CreatedAt int64  `db:"created_at"`
}

// PutCard inserts or replaces a card in the catalog.
func (s *Store) PutCard(ctx context.Context, doc content.CardDocument) error {
	tags, err := json.Marshal(doc.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cards (card_id, course_id, kind, body, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (course_id, card_id)
		DO UPDATE SET kind = excluded.kind, body = excluded.body, tags = excluded.tags`,
		doc.CardID, doc.CourseID, doc.Kind, doc.Body, string(tags), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("put card %s: %w", doc.CardID, err)
	}
	return nil
}

// LoadCard resolves a card to its render-ready document. Satisfies the
// hydration loader contract; a missing card is an error so hydration can
// skip it.
func (s *Store) LoadCard(ctx context.Context, courseID, cardID string) (*content.CardDocument, error) {
	var row cardRow
	err := s.db.GetContext(ctx, &row, `
		SELECT card_id, course_id, kind, body, tags, created_at
		FROM cards WHERE course_id = ? AND card_id = ?`, courseID, cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("card %s/%s: %w", courseID, cardID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load card %s: %w", cardID, err)
	}

	var tags []string
	if err := json.Unmarshal([]byte(row.Tags), &tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags for %s: %w", cardID, err)
	}
	return &content.CardDocument{
		CardID:   row.CardID,
		CourseID: row.CourseID,
		Kind:     row.Kind,
		Body:     row.Body,
		Tags:     tags,
	}, nil
}

// NewCardIDs returns up to n cards the user has never interacted with, in
// catalog order. Satisfies the navigator catalog contract.
func (s *Store) NewCardIDs(ctx context.Context, courseID string, n int) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT c.card_id
		FROM cards c
		LEFT JOIN card_histories h
			ON h.course_id = c.course_id AND h.card_id = c.card_id
		WHERE c.course_id = ? AND h.card_id IS NULL
		ORDER BY c.created_at, c.card_id
		LIMIT ?`, courseID, n)
	if err != nil {
		return nil, fmt.Errorf("query new cards for %s: %w", courseID, err)
	}
	return ids, nil
}

// CardCount reports the catalog size for a course.
func (s *Store) CardCount(ctx context.Context, courseID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM cards WHERE course_id = ?`, courseID)
	if err != nil {
		return 0, fmt.Errorf("count cards for %s: %w", courseID, err)
	}
	return n, nil
}
