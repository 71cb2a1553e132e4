package recommender

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gonum.org/v1/gonum/floats"
)

// accentFolder strips combining marks so "Amélie" and "Amelie" share a term.
var accentFolder = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// ContentMatrix is a TF-IDF vector space over item descriptions: one unit-
// length sparse row per document, dimensions ordered by the lexicographically
// sorted vocabulary so they are reproducible across runs on the same corpus.
type ContentMatrix struct {
	vocab      []string
	vocabIndex map[string]int
	rows       []map[int]float64
}

func (cm *ContentMatrix) NumDocs() int   { return len(cm.rows) }
func (cm *ContentMatrix) VocabSize() int { return len(cm.vocab) }

// Vocabulary returns the surviving terms in dimension order.
func (cm *ContentMatrix) Vocabulary() []string {
	out := make([]string, len(cm.vocab))
	copy(out, cm.vocab)
	return out
}

// Row returns the sparse TF-IDF weights of one document.
func (cm *ContentMatrix) Row(doc int) map[int]float64 {
	if doc < 0 || doc >= len(cm.rows) {
		return nil
	}
	return cm.rows[doc]
}

// Vectorize builds the TF-IDF space for a corpus. minDF is an absolute
// document count; maxDF is a fraction of the corpus. Terms with document
// frequency outside the band are dropped from the vocabulary.
func Vectorize(corpus []string, minDF int, maxDF float64) (*ContentMatrix, error) {
	if len(corpus) == 0 {
		return nil, ErrEmptyCorpus
	}
	if minDF < 1 {
		minDF = 1
	}
	if maxDF <= 0 || maxDF > 1 {
		maxDF = 1.0
	}

	docs := make([][]string, len(corpus))
	df := make(map[string]int)
	for d, text := range corpus {
		docs[d] = tokenize(text)
		seen := make(map[string]bool, len(docs[d]))
		for _, t := range docs[d] {
			if !seen[t] {
				df[t]++
				seen[t] = true
			}
		}
	}

	numDocs := float64(len(corpus))
	var vocab []string
	for t, freq := range df {
		if freq >= minDF && float64(freq)/numDocs <= maxDF {
			vocab = append(vocab, t)
		}
	}
	if len(vocab) == 0 {
		return nil, ErrEmptyCorpus
	}
	sort.Strings(vocab)

	vocabIndex := make(map[string]int, len(vocab))
	for i, t := range vocab {
		vocabIndex[t] = i
	}

	cm := &ContentMatrix{
		vocab:      vocab,
		vocabIndex: vocabIndex,
		rows:       make([]map[int]float64, len(corpus)),
	}

	for d, tokens := range docs {
		row := make(map[int]float64)
		for _, t := range tokens {
			if i, ok := vocabIndex[t]; ok {
				row[i]++
			}
		}
		// tf * smoothed idf, then unit length per document.
		var sqSum float64
		for i, tf := range row {
			idf := math.Log((1+numDocs)/(1+float64(df[vocab[i]]))) + 1
			w := tf * idf
			row[i] = w
			sqSum += w * w
		}
		if sqSum > 0 {
			lNorm := math.Sqrt(sqSum)
			for i := range row {
				row[i] /= lNorm
			}
		}
		cm.rows[d] = row
	}

	return cm, nil
}

// tokenize lowercases, folds accents, and splits on non-alphanumeric runes.
// Single-rune tokens carry no signal and are dropped.
func tokenize(text string) []string {
	folded, _, err := transform.String(accentFolder, strings.ToLower(text))
	if err != nil {
		folded = strings.ToLower(text)
	}
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// Profile derives a user profile vector as the element-wise mean of the
// content rows of the user's historical items. Returns nil when no known
// item with text survives filtering; callers must treat nil as "no profile",
// never as a zero vector.
func Profile(historyIndices []int, cm *ContentMatrix) []float64 {
	if cm == nil {
		return nil
	}
	var used int
	profile := make([]float64, cm.VocabSize())
	for _, idx := range historyIndices {
		row := cm.Row(idx)
		if len(row) == 0 {
			continue
		}
		for i, w := range row {
			profile[i] += w
		}
		used++
	}
	if used == 0 {
		return nil
	}
	floats.Scale(1/float64(used), profile)
	return profile
}

// CosineSimilarity computes the cosine between a dense profile vector and
// one sparse document row. Zero when either side has no magnitude.
func (cm *ContentMatrix) CosineSimilarity(profile []float64, doc int) float64 {
	row := cm.Row(doc)
	if len(row) == 0 || len(profile) == 0 {
		return 0
	}
	var dot, rowSq float64
	for i, w := range row {
		if i < len(profile) {
			dot += w * profile[i]
		}
		rowSq += w * w
	}
	profNorm := floats.Norm(profile, 2)
	if profNorm == 0 || rowSq == 0 {
		return 0
	}
	return dot / (profNorm * math.Sqrt(rowSq))
}
