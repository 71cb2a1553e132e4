package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/miravex/cinerec/pkg/models"
)

// DatabaseQuerier is the slice of pgx the store needs; pgxpool and pgxmock
// both satisfy it.
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// InteractionStore reads and writes the watchlist interaction log.
type InteractionStore struct {
	db     DatabaseQuerier
	logger *logrus.Logger
}

func NewInteractionStore(db DatabaseQuerier, logger *logrus.Logger) *InteractionStore {
	return &InteractionStore{db: db, logger: logger}
}

// ListInteractions returns every (user, item) pair. Training runs consume the
// full log at once; there is no pagination at this boundary.
func (s *InteractionStore) ListInteractions(ctx context.Context) ([]models.Interaction, error) {
	rows, err := s.db.Query(ctx,
		`SELECT user_id, item_id FROM watchlists ORDER BY created_at, user_id, item_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	var interactions []models.Interaction
	for rows.Next() {
		var rec models.Interaction
		if err := rows.Scan(&rec.UserID, &rec.ItemID); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		interactions = append(interactions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read interactions: %w", err)
	}

	return interactions, nil
}

// ListUserHistory returns the item ids a single user has interacted with,
// in interaction order.
func (s *InteractionStore) ListUserHistory(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT item_id FROM watchlists WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user history: %w", err)
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var itemID string
		if err := rows.Scan(&itemID); err != nil {
			return nil, fmt.Errorf("failed to scan history item: %w", err)
		}
		items = append(items, itemID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read user history: %w", err)
	}

	return items, nil
}

// AddInteraction upserts one watchlist row. Duplicate pairs are a no-op,
// matching the binary-presence semantics of the training matrix.
func (s *InteractionStore) AddInteraction(ctx context.Context, rec models.Interaction) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO watchlists (user_id, item_id, created_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id, item_id) DO NOTHING`,
		rec.UserID, rec.ItemID)
	if err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": rec.UserID,
		"item_id": rec.ItemID,
	}).Debug("Interaction stored")

	return nil
}
