package recommender

import (
	"sort"

	"github.com/miravex/cinerec/pkg/models"
)

// CodeMap is a bijection between opaque external ids and dense zero-based
// indices. Codes are assigned in first-seen order, so the mapping is
// deterministic for a given input ordering. Maps are rebuilt from scratch
// on every training run; indices are not stable across runs.
type CodeMap struct {
	ids   []string
	index map[string]int
}

func newCodeMap() *CodeMap {
	return &CodeMap{index: make(map[string]int)}
}

// code returns the index for id, assigning the next free index on first sight.
func (c *CodeMap) code(id string) int {
	if idx, ok := c.index[id]; ok {
		return idx
	}
	idx := len(c.ids)
	c.ids = append(c.ids, id)
	c.index[id] = idx
	return idx
}

// Index returns the dense index for an external id.
func (c *CodeMap) Index(id string) (int, bool) {
	idx, ok := c.index[id]
	return idx, ok
}

// ID returns the external id for a dense index.
func (c *CodeMap) ID(idx int) (string, bool) {
	if idx < 0 || idx >= len(c.ids) {
		return "", false
	}
	return c.ids[idx], true
}

// IDs returns all external ids in index order.
func (c *CodeMap) IDs() []string {
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

func (c *CodeMap) Len() int { return len(c.ids) }

// MatrixOptions controls matrix construction. The default collapses duplicate
// (user, item) pairs to binary presence; CountWeighted is the explicit opt-in
// that lets repeats accumulate as a confidence signal.
type MatrixOptions struct {
	CountWeighted bool
}

// InteractionMatrix is a sparse user x item interaction matrix together with
// the invertible code maps it was built against.
type InteractionMatrix struct {
	Users *CodeMap
	Items *CodeMap

	rows []map[int]float64
}

// BuildMatrix converts interaction records into a sparse matrix with dense
// user and item codes. Requires at least 2 records.
func BuildMatrix(records []models.Interaction, opts MatrixOptions) (*InteractionMatrix, error) {
	if len(records) < 2 {
		return nil, ErrInsufficientData
	}

	m := &InteractionMatrix{
		Users: newCodeMap(),
		Items: newCodeMap(),
	}

	for _, rec := range records {
		u := m.Users.code(rec.UserID)
		i := m.Items.code(rec.ItemID)

		for len(m.rows) <= u {
			m.rows = append(m.rows, make(map[int]float64))
		}
		if opts.CountWeighted {
			m.rows[u][i]++
		} else {
			m.rows[u][i] = 1
		}
	}

	return m, nil
}

func (m *InteractionMatrix) NumUsers() int { return m.Users.Len() }
func (m *InteractionMatrix) NumItems() int { return m.Items.Len() }

// Weight returns the cell value at (userIndex, itemIndex); zero when absent.
func (m *InteractionMatrix) Weight(userIndex, itemIndex int) float64 {
	if userIndex < 0 || userIndex >= len(m.rows) {
		return 0
	}
	return m.rows[userIndex][itemIndex]
}

// Seen reports whether the user has interacted with the item.
func (m *InteractionMatrix) Seen(userIndex, itemIndex int) bool {
	return m.Weight(userIndex, itemIndex) > 0
}

// UserItems returns the item indices the user interacted with, ascending.
func (m *InteractionMatrix) UserItems(userIndex int) []int {
	if userIndex < 0 || userIndex >= len(m.rows) {
		return nil
	}
	items := make([]int, 0, len(m.rows[userIndex]))
	for i := range m.rows[userIndex] {
		items = append(items, i)
	}
	sort.Ints(items)
	return items
}
