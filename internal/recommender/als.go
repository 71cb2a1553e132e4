package recommender

import (
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ALSParams are the training hyperparameters. They are explicit, never
// inferred from the data.
type ALSParams struct {
	Factors        int
	Regularization float64
	Iterations     int
	// ConfidenceScale is the alpha in c = 1 + alpha*w from Hu/Koren/Volinsky.
	ConfidenceScale float64
	// Seed makes factor initialization reproducible.
	Seed int64
}

func (p *ALSParams) applyDefaults() {
	if p.Factors <= 0 {
		p.Factors = 50
	}
	if p.Regularization <= 0 {
		p.Regularization = 0.1
	}
	if p.Iterations <= 0 {
		p.Iterations = 50
	}
	if p.ConfidenceScale <= 0 {
		p.ConfidenceScale = 40.0
	}
}

// FactorModel holds the learned user and item factor matrices. It is rebuilt
// wholesale on every training run and treated as read-only afterwards.
type FactorModel struct {
	UserFactors *mat.Dense // |users| x factors
	ItemFactors *mat.Dense // |items| x factors
	Factors     int
}

func (m *FactorModel) NumUsers() int {
	r, _ := m.UserFactors.Dims()
	return r
}

func (m *FactorModel) NumItems() int {
	r, _ := m.ItemFactors.Dims()
	return r
}

// ScoredItem pairs an item index with a model affinity score.
type ScoredItem struct {
	ItemIndex int
	Score     float64
}

// TrainALS fits an implicit-feedback alternating least squares model to the
// interaction matrix. Each half-iteration solves the regularized normal
// equations (YtY + Yt(C-I)Y + lambda*I) x = Yt C p per user (resp. item)
// with confidence c = 1 + alpha*w and binary preference p.
func TrainALS(matrix *InteractionMatrix, params ALSParams) (*FactorModel, error) {
	if matrix == nil || matrix.NumUsers() == 0 || matrix.NumItems() == 0 {
		return nil, ErrInsufficientData
	}
	params.applyDefaults()

	numUsers := matrix.NumUsers()
	numItems := matrix.NumItems()
	f := params.Factors

	rng := rand.New(rand.NewSource(params.Seed))
	userFactors := randomFactors(rng, numUsers, f)
	itemFactors := randomFactors(rng, numItems, f)

	// Transposed view of the interactions for the item half-step.
	itemUsers := make([]map[int]float64, numItems)
	for i := range itemUsers {
		itemUsers[i] = make(map[int]float64)
	}
	for u := range matrix.rows {
		for i, w := range matrix.rows[u] {
			itemUsers[i][u] = w
		}
	}

	for iter := 0; iter < params.Iterations; iter++ {
		solveSide(userFactors, itemFactors, matrix.rows, params)
		solveSide(itemFactors, userFactors, itemUsers, params)
	}

	return &FactorModel{
		UserFactors: userFactors,
		ItemFactors: itemFactors,
		Factors:     f,
	}, nil
}

// solveSide recomputes every row of target, holding fixed constant.
// observed[r] maps column indices of fixed to interaction weights.
func solveSide(target, fixed *mat.Dense, observed []map[int]float64, params ALSParams) {
	rows, f := target.Dims()

	// Base system YtY + lambda*I shared by every row.
	var ytY mat.Dense
	ytY.Mul(fixed.T(), fixed)
	base := mat.NewSymDense(f, nil)
	for i := 0; i < f; i++ {
		for j := i; j < f; j++ {
			v := ytY.At(i, j)
			if i == j {
				v += params.Regularization
			}
			base.SetSym(i, j, v)
		}
	}

	// Scratch system must be allocated at full size up front: CopySym only
	// copies into existing backing storage, it never grows the receiver.
	a := mat.NewSymDense(f, nil)
	b := mat.NewVecDense(f, nil)
	var x mat.VecDense
	var chol mat.Cholesky

	for r := 0; r < rows; r++ {
		obs := observed[r]
		if len(obs) == 0 {
			continue
		}

		a.CopySym(base)
		b.Zero()
		for col, w := range obs {
			y := fixed.RowView(col)
			c := 1 + params.ConfidenceScale*w
			a.SymRankOne(a, c-1, y)
			b.AddScaledVec(b, c, y)
		}

		if chol.Factorize(a) {
			if err := chol.SolveVecTo(&x, b); err != nil {
				continue
			}
		} else if err := x.SolveVec(a, b); err != nil {
			continue
		}
		target.SetRow(r, x.RawVector().Data)
	}
}

func randomFactors(rng *rand.Rand, rows, f int) *mat.Dense {
	data := make([]float64, rows*f)
	for i := range data {
		data[i] = 0.01 * rng.NormFloat64()
	}
	return mat.NewDense(rows, f, data)
}

// Recommend scores every item the user has not interacted with and returns
// the top n, strictly descending by score with ties broken by ascending item
// index for determinism.
func (m *FactorModel) Recommend(userIndex int, matrix *InteractionMatrix, n int) ([]ScoredItem, error) {
	if userIndex < 0 || userIndex >= m.NumUsers() {
		return nil, ErrUnknownUser
	}
	if n <= 0 {
		return nil, nil
	}

	userRow := m.UserFactors.RawRowView(userIndex)
	scored := make([]ScoredItem, 0, m.NumItems())
	for i := 0; i < m.NumItems(); i++ {
		if matrix.Seen(userIndex, i) {
			continue
		}
		scored = append(scored, ScoredItem{
			ItemIndex: i,
			Score:     floats.Dot(userRow, m.ItemFactors.RawRowView(i)),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ItemIndex < scored[j].ItemIndex
	})

	if len(scored) > n {
		scored = scored[:n]
	}
	return scored, nil
}
