package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Document kinds stored per user.
const (
	KindCharacter = "character"
	KindWorld     = "world"
	KindCampaign  = "campaign"
	KindMap       = "map"
	KindTimeline  = "timeline"
)

// ErrNotFound is returned when a document does not exist for the user.
var ErrNotFound = errors.New("document not found")

// Document is one user-owned record of any kind, with the entity body
// kept as raw JSON. The AI core never sees this type; handlers decode
// the data into plain structs before passing them along.
type Document struct {
	UserID    string          `json:"user_id"`
	Kind      string          `json:"kind"`
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Save upserts a document. An empty id gets a generated one; the used
// id is returned.
func (s *Store) Save(ctx context.Context, userID, kind, id string, data json.RawMessage) (string, error) {
	if id == "" {
		id = uuid.New().String()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO documents (user_id, kind, id, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, kind, id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		userID, kind, id, data)
	if err != nil {
		return "", fmt.Errorf("save %s: %w", kind, err)
	}
	s.logger.Debug("document saved",
		zap.String("user", userID), zap.String("kind", kind), zap.String("id", id))
	return id, nil
}

// Get loads one document.
func (s *Store) Get(ctx context.Context, userID, kind, id string) (*Document, error) {
	doc := Document{UserID: userID, Kind: kind, ID: id}
	err := s.db.QueryRow(ctx, `
		SELECT data, created_at, updated_at FROM documents
		WHERE user_id = $1 AND kind = $2 AND id = $3`,
		userID, kind, id).Scan(&doc.Data, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", kind, err)
	}
	return &doc, nil
}

// List returns all of a user's documents of one kind, oldest first.
func (s *Store) List(ctx context.Context, userID, kind string) ([]*Document, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, data, created_at, updated_at FROM documents
		WHERE user_id = $1 AND kind = $2
		ORDER BY created_at ASC`,
		userID, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc := Document{UserID: userID, Kind: kind}
		if err := rows.Scan(&doc.ID, &doc.Data, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// Delete removes one document.
func (s *Store) Delete(ctx context.Context, userID, kind, id string) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM documents
		WHERE user_id = $1 AND kind = $2 AND id = $3`,
		userID, kind, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
