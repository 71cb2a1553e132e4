package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miravex/cinerec/internal/config"
	"github.com/miravex/cinerec/internal/recommender"
	"github.com/miravex/cinerec/internal/rerank"
	"github.com/miravex/cinerec/pkg/models"
)

type fakeSource struct {
	interactions []models.Interaction
	err          error
}

func (f *fakeSource) ListInteractions(ctx context.Context) ([]models.Interaction, error) {
	return f.interactions, f.err
}

type fakeCatalog struct {
	items map[string]*models.Item
}

func (f *fakeCatalog) Item(ctx context.Context, itemID string) (*models.Item, error) {
	return f.items[itemID], nil
}

// passthroughReranker converts fused candidates straight into
// recommendations, recording what it was asked to rank.
type fakeReranker struct {
	mu      sync.Mutex
	calls   int
	history [][]string
}

func (f *fakeReranker) Rerank(ctx context.Context, historyTitles []string, candidates []models.Candidate, topN int) ([]models.Recommendation, rerank.Outcome) {
	f.mu.Lock()
	f.calls++
	f.history = append(f.history, historyTitles)
	f.mu.Unlock()

	if len(candidates) > topN {
		candidates = candidates[:topN]
	}
	recs := make([]models.Recommendation, len(candidates))
	for i, c := range candidates {
		recs[i] = models.Recommendation{ItemID: c.ItemID, Score: c.FusedScore}
	}
	return recs, rerank.OutcomeSkipped
}

type memorySink struct {
	mu      sync.Mutex
	written map[string][]models.Recommendation
	failFor string
}

func newMemorySink() *memorySink {
	return &memorySink{written: make(map[string][]models.Recommendation)}
}

func (s *memorySink) Write(ctx context.Context, userID string, recs []models.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if userID == s.failFor {
		return fmt.Errorf("sink unavailable")
	}
	s.written[userID] = recs
	return nil
}

func (s *memorySink) Read(ctx context.Context, userID string) ([]models.Recommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written[userID], nil
}

func testAlgorithmConfig() *config.AlgorithmConfig {
	return &config.AlgorithmConfig{
		ALS: config.ALSConfig{
			Factors:         4,
			Regularization:  0.1,
			Iterations:      5,
			ConfidenceScale: 40.0,
			Seed:            42,
		},
		Content:        config.ContentConfig{MinDF: 1, MaxDF: 1.0},
		Hybrid:         config.HybridConfig{Alpha: 0.7},
		CandidateCount: 10,
		TopN:           5,
		Workers:        2,
	}
}

func testInteractions() []models.Interaction {
	return []models.Interaction{
		{UserID: "u1", ItemID: "m1"},
		{UserID: "u1", ItemID: "m2"},
		{UserID: "u2", ItemID: "m1"},
		{UserID: "u2", ItemID: "m2"},
		{UserID: "u2", ItemID: "m3"},
		{UserID: "u3", ItemID: "m4"},
	}
}

func testItems() map[string]*models.Item {
	return map[string]*models.Item{
		"m1": {ID: "m1", Title: "First Film", Overview: "A hero saves the world.", Genres: []string{"Action"}},
		"m2": {ID: "m2", Title: "Second Film", Overview: "A villain tries to destroy the world.", Genres: []string{"Action"}},
		"m3": {ID: "m3", Title: "Third Film", Overview: "A hero and villain face off.", Genres: []string{"Drama"}},
		"m4": {ID: "m4", Title: "Fourth Film", Overview: "A quiet story about a garden.", Genres: []string{"Drama"}},
	}
}

func newTestPipeline(source InteractionSource, catalog ItemCatalog, reranker CandidateReranker, sink *memorySink) *Pipeline {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return New(testAlgorithmConfig(), source, catalog, reranker, sink, nil, logger)
}

func TestPipeline_Run(t *testing.T) {
	source := &fakeSource{interactions: testInteractions()}
	catalog := &fakeCatalog{items: testItems()}
	reranker := &fakeReranker{}
	sink := newMemorySink()

	p := newTestPipeline(source, catalog, reranker, sink)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Users)
	assert.Equal(t, 4, summary.Items)
	assert.Equal(t, 3, summary.UsersScored)
	assert.Equal(t, 0, summary.UsersFailed)
	assert.True(t, summary.ContentEnabled)

	assert.Equal(t, 3, reranker.calls)

	for _, userID := range []string{"u1", "u2", "u3"} {
		recs, err := sink.Read(context.Background(), userID)
		require.NoError(t, err)
		require.NotNil(t, recs, "expected recommendations for %s", userID)
		assert.LessOrEqual(t, len(recs), 5)
	}

	// Seen items never come back as recommendations.
	u1Recs, _ := sink.Read(context.Background(), "u1")
	for _, rec := range u1Recs {
		assert.NotContains(t, []string{"m1", "m2"}, rec.ItemID)
	}
}

func TestPipeline_Run_HistoryTitlesReachReranker(t *testing.T) {
	source := &fakeSource{interactions: testInteractions()}
	catalog := &fakeCatalog{items: testItems()}
	reranker := &fakeReranker{}
	sink := newMemorySink()

	p := newTestPipeline(source, catalog, reranker, sink)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	// Every call carries the user's watch history as titles, not ids.
	require.Len(t, reranker.history, 3)
	for _, titles := range reranker.history {
		assert.NotEmpty(t, titles)
		for _, title := range titles {
			assert.Contains(t, title, "Film")
		}
	}
}

func TestPipeline_Run_InsufficientData(t *testing.T) {
	source := &fakeSource{interactions: []models.Interaction{{UserID: "u1", ItemID: "m1"}}}

	p := newTestPipeline(source, &fakeCatalog{}, &fakeReranker{}, newMemorySink())

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, recommender.ErrInsufficientData)
}

func TestPipeline_Run_SourceError(t *testing.T) {
	source := &fakeSource{err: fmt.Errorf("connection refused")}

	p := newTestPipeline(source, &fakeCatalog{}, &fakeReranker{}, newMemorySink())

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load interactions")
}

func TestPipeline_Run_MissingMetadataDropsCandidate(t *testing.T) {
	items := testItems()
	delete(items, "m4")

	source := &fakeSource{interactions: testInteractions()}
	catalog := &fakeCatalog{items: items}
	sink := newMemorySink()

	p := newTestPipeline(source, catalog, &fakeReranker{}, sink)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.UsersScored)

	// m4 has no metadata, so it must never surface as a recommendation
	// even though it has a collaborative score.
	for _, userID := range []string{"u1", "u2", "u3"} {
		recs, _ := sink.Read(context.Background(), userID)
		for _, rec := range recs {
			assert.NotEqual(t, "m4", rec.ItemID)
		}
	}
}

func TestPipeline_Run_SinkFailureIsPerUser(t *testing.T) {
	source := &fakeSource{interactions: testInteractions()}
	catalog := &fakeCatalog{items: testItems()}
	sink := newMemorySink()
	sink.failFor = "u2"

	p := newTestPipeline(source, catalog, &fakeReranker{}, sink)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.UsersScored)
	assert.Equal(t, 1, summary.UsersFailed)

	recs, _ := sink.Read(context.Background(), "u1")
	assert.NotNil(t, recs)
}

func TestPipeline_Run_EmptyCorpusDisablesContent(t *testing.T) {
	items := testItems()
	for _, item := range items {
		item.Overview = ""
		item.Genres = nil
	}

	source := &fakeSource{interactions: testInteractions()}
	catalog := &fakeCatalog{items: items}
	sink := newMemorySink()

	p := newTestPipeline(source, catalog, &fakeReranker{}, sink)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, summary.ContentEnabled)
	assert.Equal(t, 3, summary.UsersScored)
}
