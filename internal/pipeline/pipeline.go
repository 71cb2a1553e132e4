package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/miravex/cinerec/internal/config"
	"github.com/miravex/cinerec/internal/metrics"
	"github.com/miravex/cinerec/internal/recommender"
	"github.com/miravex/cinerec/internal/rerank"
	"github.com/miravex/cinerec/internal/store"
	"github.com/miravex/cinerec/pkg/models"
)

// InteractionSource supplies the full interaction log for a training run.
type InteractionSource interface {
	ListInteractions(ctx context.Context) ([]models.Interaction, error)
}

// ItemCatalog resolves item metadata. A missing item is (nil, nil).
type ItemCatalog interface {
	Item(ctx context.Context, itemID string) (*models.Item, error)
}

// CandidateReranker runs the second-stage semantic re-rank. Implementations
// must degrade to the fused ranking rather than fail.
type CandidateReranker interface {
	Rerank(ctx context.Context, historyTitles []string, candidates []models.Candidate, topN int) ([]models.Recommendation, rerank.Outcome)
}

// RunSummary reports what one training run accomplished.
type RunSummary struct {
	Users          int           `json:"users"`
	Items          int           `json:"items"`
	UsersScored    int           `json:"users_scored"`
	UsersFailed    int           `json:"users_failed"`
	ContentEnabled bool          `json:"content_enabled"`
	Duration       time.Duration `json:"duration"`
}

// Pipeline runs the full batch: load interactions, fit the factor model,
// vectorize the catalog, then score every user in parallel and persist the
// results. Per-user failures are counted and skipped; only stage failures
// that affect every user abort the run.
type Pipeline struct {
	config   *config.AlgorithmConfig
	source   InteractionSource
	catalog  ItemCatalog
	reranker CandidateReranker
	sink     store.ResultSink
	metrics  *metrics.Metrics
	logger   *logrus.Logger
}

func New(
	cfg *config.AlgorithmConfig,
	source InteractionSource,
	catalog ItemCatalog,
	reranker CandidateReranker,
	sink store.ResultSink,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *Pipeline {
	return &Pipeline{
		config:   cfg,
		source:   source,
		catalog:  catalog,
		reranker: reranker,
		sink:     sink,
		metrics:  m,
		logger:   logger,
	}
}

func (p *Pipeline) Run(ctx context.Context) (*RunSummary, error) {
	started := time.Now()

	summary, err := p.run(ctx)

	elapsed := time.Since(started)
	if p.metrics != nil {
		p.metrics.TrainingDuration.Observe(elapsed.Seconds())
		result := "success"
		if err != nil {
			result = "failure"
		}
		p.metrics.TrainingRuns.WithLabelValues(result).Inc()
	}

	if err != nil {
		p.logger.WithError(err).WithField("duration", elapsed).Error("Training run failed")
		return nil, err
	}

	summary.Duration = elapsed
	p.logger.WithFields(logrus.Fields{
		"users":         summary.Users,
		"items":         summary.Items,
		"users_scored":  summary.UsersScored,
		"users_failed":  summary.UsersFailed,
		"content_model": summary.ContentEnabled,
		"duration":      elapsed,
	}).Info("Training run complete")

	return summary, nil
}

func (p *Pipeline) run(ctx context.Context) (*RunSummary, error) {
	interactions, err := p.source.ListInteractions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load interactions: %w", err)
	}

	matrix, err := recommender.BuildMatrix(interactions, recommender.MatrixOptions{
		CountWeighted: p.config.CountWeighted,
	})
	if err != nil {
		if errors.Is(err, recommender.ErrInsufficientData) {
			return nil, fmt.Errorf("not enough interactions to train: %w", err)
		}
		return nil, fmt.Errorf("failed to build interaction matrix: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"users": matrix.NumUsers(),
		"items": matrix.NumItems(),
	}).Info("Interaction matrix built")

	model, err := recommender.TrainALS(matrix, recommender.ALSParams{
		Factors:         p.config.ALS.Factors,
		Regularization:  p.config.ALS.Regularization,
		Iterations:      p.config.ALS.Iterations,
		ConfidenceScale: p.config.ALS.ConfidenceScale,
		Seed:            p.config.ALS.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to train factor model: %w", err)
	}

	items := p.loadCatalog(ctx, matrix)
	contentMatrix := p.vectorizeCatalog(matrix, items)

	scored, failed := p.scoreUsers(ctx, matrix, model, contentMatrix, items)

	return &RunSummary{
		Users:          matrix.NumUsers(),
		Items:          matrix.NumItems(),
		UsersScored:    scored,
		UsersFailed:    failed,
		ContentEnabled: contentMatrix != nil,
	}, nil
}

// loadCatalog resolves metadata for every item in the matrix, indexed by
// item code. Items the catalog cannot resolve stay nil; they still have a
// collaborative score but contribute an empty document to the content model
// and are dropped from the final candidate list.
func (p *Pipeline) loadCatalog(ctx context.Context, matrix *recommender.InteractionMatrix) []*models.Item {
	items := make([]*models.Item, matrix.NumItems())
	for idx, itemID := range matrix.Items.IDs() {
		item, err := p.catalog.Item(ctx, itemID)
		if err != nil {
			p.logger.WithError(err).WithField("item_id", itemID).
				Warn("Failed to fetch catalog metadata")
			continue
		}
		items[idx] = item
	}
	return items
}

// vectorizeCatalog builds the TF-IDF model over item overviews and genres.
// A failure here disables the content signal for the whole run instead of
// aborting it; fusion degrades to the pure collaborative ranking.
func (p *Pipeline) vectorizeCatalog(matrix *recommender.InteractionMatrix, items []*models.Item) *recommender.ContentMatrix {
	corpus := make([]string, len(items))
	for idx, item := range items {
		if item == nil {
			continue
		}
		corpus[idx] = itemDocument(item)
	}

	cm, err := recommender.Vectorize(corpus, p.config.Content.MinDF, p.config.Content.MaxDF)
	if err != nil {
		p.logger.WithError(err).Warn("Content vectorization failed, continuing without content signal")
		return nil
	}
	return cm
}

// itemDocument is the text fed to the content model for one item.
func itemDocument(item *models.Item) string {
	doc := item.Overview
	for _, genre := range item.Genres {
		doc += " " + genre
	}
	return doc
}

func (p *Pipeline) scoreUsers(
	ctx context.Context,
	matrix *recommender.InteractionMatrix,
	model *recommender.FactorModel,
	contentMatrix *recommender.ContentMatrix,
	items []*models.Item,
) (scored, failed int) {
	workers := p.config.Workers
	if workers < 1 {
		workers = 1
	}

	var scoredCount, failedCount atomic.Int64
	userIndices := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for userIndex := range userIndices {
				if err := p.scoreUser(ctx, userIndex, matrix, model, contentMatrix, items); err != nil {
					failedCount.Add(1)
					if p.metrics != nil {
						p.metrics.UserScoreErrors.Inc()
					}
					userID, _ := matrix.Users.ID(userIndex)
					p.logger.WithError(err).WithField("user_id", userID).
						Warn("Failed to score user")
					continue
				}
				scoredCount.Add(1)
				if p.metrics != nil {
					p.metrics.UsersScored.Inc()
				}
			}
		}()
	}

	for userIndex := 0; userIndex < matrix.NumUsers(); userIndex++ {
		select {
		case <-ctx.Done():
			close(userIndices)
			wg.Wait()
			return int(scoredCount.Load()), int(failedCount.Load())
		case userIndices <- userIndex:
		}
	}
	close(userIndices)
	wg.Wait()

	return int(scoredCount.Load()), int(failedCount.Load())
}

func (p *Pipeline) scoreUser(
	ctx context.Context,
	userIndex int,
	matrix *recommender.InteractionMatrix,
	model *recommender.FactorModel,
	contentMatrix *recommender.ContentMatrix,
	items []*models.Item,
) error {
	started := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.ScoringDuration.Observe(time.Since(started).Seconds())
		}
	}()

	collab, err := model.Recommend(userIndex, matrix, p.config.CandidateCount)
	if err != nil {
		return fmt.Errorf("collaborative scoring failed: %w", err)
	}

	history := matrix.UserItems(userIndex)

	var profile []float64
	if contentMatrix != nil {
		profile = recommender.Profile(history, contentMatrix)
	}

	fused := recommender.Fuse(collab, contentMatrix, profile, p.config.Hybrid.Alpha)

	candidates := p.resolveCandidates(fused, matrix, items)
	historyTitles := resolveTitles(history, items)

	recs, outcome := p.reranker.Rerank(ctx, historyTitles, candidates, p.config.TopN)
	if p.metrics != nil {
		p.metrics.RerankOutcomes.WithLabelValues(string(outcome)).Inc()
	}

	userID, ok := matrix.Users.ID(userIndex)
	if !ok {
		return fmt.Errorf("no user id for index %d", userIndex)
	}

	if err := p.sink.Write(ctx, userID, recs); err != nil {
		if p.metrics != nil {
			p.metrics.SinkWrites.WithLabelValues("failure").Inc()
		}
		return fmt.Errorf("failed to persist recommendations: %w", err)
	}
	if p.metrics != nil {
		p.metrics.SinkWrites.WithLabelValues("success").Inc()
	}

	return nil
}

// resolveCandidates attaches catalog metadata to the fused ranking. Items
// without metadata are dropped: they cannot be shown or re-ranked.
func (p *Pipeline) resolveCandidates(
	fused []recommender.FusedCandidate,
	matrix *recommender.InteractionMatrix,
	items []*models.Item,
) []models.Candidate {
	candidates := make([]models.Candidate, 0, len(fused))
	for _, fc := range fused {
		item := items[fc.ItemIndex]
		if item == nil {
			continue
		}
		itemID, ok := matrix.Items.ID(fc.ItemIndex)
		if !ok {
			continue
		}

		candidate := models.Candidate{
			ItemID:      itemID,
			Title:       item.Title,
			Overview:    item.Overview,
			Genres:      item.Genres,
			CollabScore: fc.CollabScore,
			FusedScore:  fc.FusedScore,
		}
		if fc.HasContent {
			content := fc.ContentScore
			candidate.ContentScore = &content
		}
		candidates = append(candidates, candidate)
	}
	return candidates
}

func resolveTitles(history []int, items []*models.Item) []string {
	titles := make([]string, 0, len(history))
	for _, idx := range history {
		if idx < 0 || idx >= len(items) || items[idx] == nil || items[idx].Title == "" {
			continue
		}
		titles = append(titles, items[idx].Title)
	}
	return titles
}
