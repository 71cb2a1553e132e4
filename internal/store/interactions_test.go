package store

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miravex/cinerec/pkg/models"
)

func TestInteractionStore_ListInteractions(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	store := NewInteractionStore(mockDB, logger)

	t.Run("returns all pairs in scan order", func(t *testing.T) {
		rows := pgxmock.NewRows([]string{"user_id", "item_id"}).
			AddRow("u1", "m5").
			AddRow("u1", "m12").
			AddRow("u2", "m5")
		mockDB.ExpectQuery("SELECT user_id, item_id FROM watchlists").WillReturnRows(rows)

		interactions, err := store.ListInteractions(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []models.Interaction{
			{UserID: "u1", ItemID: "m5"},
			{UserID: "u1", ItemID: "m12"},
			{UserID: "u2", ItemID: "m5"},
		}, interactions)

		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("propagates query errors", func(t *testing.T) {
		mockDB.ExpectQuery("SELECT user_id, item_id FROM watchlists").
			WillReturnError(errors.New("connection refused"))

		_, err := store.ListInteractions(context.Background())
		assert.Error(t, err)
	})
}

func TestInteractionStore_ListUserHistory(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	store := NewInteractionStore(mockDB, logger)

	rows := pgxmock.NewRows([]string{"item_id"}).
		AddRow("m5").
		AddRow("m12")
	mockDB.ExpectQuery("SELECT item_id FROM watchlists").
		WithArgs("u1").
		WillReturnRows(rows)

	items, err := store.ListUserHistory(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m5", "m12"}, items)
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestInteractionStore_AddInteraction(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	store := NewInteractionStore(mockDB, logger)

	t.Run("upserts the watchlist row", func(t *testing.T) {
		mockDB.ExpectExec("INSERT INTO watchlists").
			WithArgs("u1", "m5").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := store.AddInteraction(context.Background(), models.Interaction{UserID: "u1", ItemID: "m5"})
		require.NoError(t, err)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("duplicate pair is a no-op, not an error", func(t *testing.T) {
		mockDB.ExpectExec("INSERT INTO watchlists").
			WithArgs("u1", "m5").
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		err := store.AddInteraction(context.Background(), models.Interaction{UserID: "u1", ItemID: "m5"})
		assert.NoError(t, err)
	})
}
