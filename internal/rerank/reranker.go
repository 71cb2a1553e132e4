package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xeipuuv/gojsonschema"

	"github.com/miravex/cinerec/internal/config"
	"github.com/miravex/cinerec/pkg/models"
)

// Outcome reports which branch a re-rank call took. The adapter never fails
// its caller; the worst case is a fallback to the fused ranking.
type Outcome string

const (
	// OutcomeReranked means the generative model's scores were applied.
	OutcomeReranked Outcome = "reranked"
	// OutcomeSkipped means no external call was needed (disabled, or the
	// user has no history to rank against).
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFallback means the external call or its response failed and
	// the fused ranking was returned unchanged.
	OutcomeFallback Outcome = "fallback"
)

// responseSchema is the contract the generative service's reply must satisfy
// before any of its numbers reach score arithmetic. The model output is an
// adversarial boundary: shape, types and value ranges are all checked.
const responseSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["item_id", "relevance_score"],
		"properties": {
			"item_id": {"type": "string", "minLength": 1},
			"relevance_score": {"type": "number", "minimum": 0, "maximum": 1},
			"matched_item_title": {"type": "string"}
		}
	}
}`

// rerankEntry is one validated row of the model response.
type rerankEntry struct {
	ItemID           string  `json:"item_id"`
	RelevanceScore   float64 `json:"relevance_score"`
	MatchedItemTitle string  `json:"matched_item_title"`
}

// Reranker sends fused candidates to a generative model for semantic
// re-ranking. Stateless per call; a single attempt with a bounded timeout,
// no retries. That trade-off keeps worst-case latency at one model call.
type Reranker struct {
	config *config.RerankConfig
	logger *logrus.Logger
	client *http.Client
	schema *gojsonschema.Schema
}

func NewReranker(cfg *config.RerankConfig, logger *logrus.Logger) (*Reranker, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(responseSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile rerank response schema: %w", err)
	}

	return &Reranker{
		config: cfg,
		logger: logger,
		client: &http.Client{Timeout: cfg.Timeout},
		schema: schema,
	}, nil
}

// Rerank asks the generative model to re-score the fused candidates against
// the user's history and recomputes a second-stage hybrid score of
// 0.5*collaborative + 0.5*relevance. This weighting is fixed and independent
// of the content-fusion alpha; the two stages are deliberately distinct.
//
// Any failure degrades to the fused ranking truncated to topN.
func (r *Reranker) Rerank(
	ctx context.Context,
	historyTitles []string,
	candidates []models.Candidate,
	topN int,
) ([]models.Recommendation, Outcome) {
	if len(candidates) > r.config.MaxCandidates && r.config.MaxCandidates > 0 {
		candidates = candidates[:r.config.MaxCandidates]
	}

	if !r.config.Enabled || len(historyTitles) == 0 {
		return fallback(candidates, topN), OutcomeSkipped
	}

	entries, err := r.score(ctx, historyTitles, candidates)
	if err != nil {
		r.logger.WithError(err).Warn("Re-rank failed, falling back to fused ranking")
		return fallback(candidates, topN), OutcomeFallback
	}

	return r.apply(entries, candidates, topN), OutcomeReranked
}

// score runs the external call and the defensive parse. It is the only
// place model output is touched before validation.
func (r *Reranker) score(
	ctx context.Context,
	historyTitles []string,
	candidates []models.Candidate,
) ([]rerankEntry, error) {
	prompt := r.buildPrompt(historyTitles, candidates)

	raw, err := r.generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generative request: %w", err)
	}

	return r.parse(raw)
}

// apply recomputes the second-stage hybrid score for every validated entry.
// Entries naming an item outside the candidate set keep a collaborative
// component of 0.0 rather than being discarded.
func (r *Reranker) apply(entries []rerankEntry, candidates []models.Candidate, topN int) []models.Recommendation {
	byID := make(map[string]models.Candidate, len(candidates))
	for _, c := range candidates {
		byID[c.ItemID] = c
	}

	recs := make([]models.Recommendation, 0, len(entries))
	for _, e := range entries {
		var collab float64
		var contentScore *float64
		if c, ok := byID[e.ItemID]; ok {
			collab = c.CollabScore
			contentScore = c.ContentScore
		}
		normCollab := clamp01(collab)
		relevance := e.RelevanceScore

		rec := models.Recommendation{
			ItemID:       e.ItemID,
			Score:        0.5*normCollab + 0.5*relevance,
			CollabScore:  &collab,
			ContentScore: contentScore,
			RerankScore:  &relevance,
		}
		if e.MatchedItemTitle != "" {
			matched := e.MatchedItemTitle
			rec.MatchedItem = &matched
		}
		recs = append(recs, rec)
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Score > recs[j].Score
	})
	if len(recs) > topN {
		recs = recs[:topN]
	}
	return recs
}

// fallback converts the fused candidates as-is, order and scores untouched.
func fallback(candidates []models.Candidate, topN int) []models.Recommendation {
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}
	recs := make([]models.Recommendation, len(candidates))
	for i, c := range candidates {
		collab := c.CollabScore
		recs[i] = models.Recommendation{
			ItemID:       c.ItemID,
			Score:        c.FusedScore,
			CollabScore:  &collab,
			ContentScore: c.ContentScore,
		}
	}
	return recs
}

// promptCandidate is the compact candidate form embedded in the prompt.
type promptCandidate struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Overview   string   `json:"overview"`
	Genres     []string `json:"genres,omitempty"`
	FusedScore float64  `json:"fused_score"`
}

func (r *Reranker) buildPrompt(historyTitles []string, candidates []models.Candidate) string {
	if max := r.config.HistoryTitles; max > 0 && len(historyTitles) > max {
		historyTitles = historyTitles[:max]
	}
	if max := r.config.PromptCandidates; max > 0 && len(candidates) > max {
		candidates = candidates[:max]
	}

	compact := make([]promptCandidate, len(candidates))
	for i, c := range candidates {
		compact[i] = promptCandidate{
			ID:         c.ItemID,
			Title:      c.Title,
			Overview:   truncateRunes(c.Overview, 150),
			Genres:     c.Genres,
			FusedScore: c.FusedScore,
		}
	}
	candidateJSON, _ := json.MarshalIndent(compact, "", "  ")

	var b strings.Builder
	b.WriteString("You are a movie recommendation expert. Analyze these candidate recommendations.\n\n")
	b.WriteString("Titles the user watched and liked:\n")
	b.WriteString(strings.Join(historyTitles, ", "))
	b.WriteString("\n\nCandidate recommendations (from collaborative filtering):\n")
	b.Write(candidateJSON)
	b.WriteString("\n\nTask: re-rank these items and return only the most relevant ones.\n\n")
	b.WriteString("For each item provide:\n")
	b.WriteString("1. relevance_score (0.0 to 1.0) - how well it matches the user's taste\n")
	b.WriteString("2. matched_item_title - the one watched title it is most similar to\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Favor diversity across genres, themes and years\n")
	b.WriteString("- Avoid near-duplicates of already watched titles\n")
	b.WriteString("- Higher relevance for thematic matches\n\n")
	b.WriteString("Return ONLY a valid JSON array (no markdown, no explanation):\n")
	b.WriteString(`[{"item_id": "123", "relevance_score": 0.95, "matched_item_title": "Some Title"}]`)
	return b.String()
}

// generate performs the single HTTP attempt against the generative service.
type generateRequest struct {
	Contents []promptContent `json:"contents"`
}

type promptContent struct {
	Parts []promptPart `json:"parts"`
}

type promptPart struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content promptContent `json:"content"`
	} `json:"candidates"`
}

func (r *Reranker) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []promptContent{{Parts: []promptPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimSuffix(r.config.BaseURL, "/"), r.config.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", r.config.APIKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}

	var parsed generateResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("malformed service envelope: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("service returned no content")
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

// parse validates the model text against the response schema before
// unmarshaling. Code fences around the JSON are tolerated and stripped.
func (r *Reranker) parse(raw string) ([]rerankEntry, error) {
	cleaned := stripCodeFence(raw)

	result, err := r.schema.Validate(gojsonschema.NewStringLoader(cleaned))
	if err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			reasons = append(reasons, e.String())
		}
		return nil, fmt.Errorf("response failed schema validation: %s", strings.Join(reasons, "; "))
	}

	var entries []rerankEntry
	if err := json.Unmarshal([]byte(cleaned), &entries); err != nil {
		return nil, fmt.Errorf("response unmarshal: %w", err)
	}
	return entries, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// Drop the language tag line ("json" or similar).
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(strings.TrimSpace(s), "json")
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
