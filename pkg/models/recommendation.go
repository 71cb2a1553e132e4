package models

import "time"

// Candidate is one scored item flowing through the recommendation pipeline:
// collaborative score from the factor model, optional content similarity,
// and the fused score the candidate is ranked by.
type Candidate struct {
	ItemID       string   `json:"item_id"`
	Title        string   `json:"title"`
	Overview     string   `json:"overview,omitempty"`
	Genres       []string `json:"genres,omitempty"`
	CollabScore  float64  `json:"collab_score"`
	ContentScore *float64 `json:"content_score,omitempty"`
	FusedScore   float64  `json:"fused_score"`
}

// Recommendation is the final per-user record written to the result sink.
// Diagnostic scores are kept so the serving layer can explain a ranking
// ("because you watched X").
type Recommendation struct {
	ItemID       string   `json:"item_id"`
	Score        float64  `json:"score"`
	CollabScore  *float64 `json:"collab_score,omitempty"`
	ContentScore *float64 `json:"content_score,omitempty"`
	RerankScore  *float64 `json:"rerank_score,omitempty"`
	MatchedItem  *string  `json:"matched_item,omitempty"`
}

type RecommendationResponse struct {
	UserID          string           `json:"user_id"`
	Recommendations []Recommendation `json:"recommendations"`
	GeneratedAt     time.Time        `json:"generated_at"`
}
