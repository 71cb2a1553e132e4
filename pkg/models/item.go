package models

// Item is catalog metadata for a recommendable item, fetched from the
// external catalog service. Overview and genres feed the content model.
type Item struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Overview string   `json:"overview"`
	Genres   []string `json:"genres,omitempty"`
}
