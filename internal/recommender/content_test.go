package recommender

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var themeCorpus = []string{
	"A hero saves the world.",
	"A villain tries to destroy the world.",
	"A hero and villain face off.",
}

func TestVectorize(t *testing.T) {
	t.Run("builds one row per document over surviving terms", func(t *testing.T) {
		cm, err := Vectorize(themeCorpus, 1, 1.0)
		require.NoError(t, err)

		assert.Equal(t, 3, cm.NumDocs())
		assert.Greater(t, cm.VocabSize(), 0)
		for d := 0; d < cm.NumDocs(); d++ {
			assert.NotEmpty(t, cm.Row(d))
		}
	})

	t.Run("vocabulary ordering is lexicographic and stable", func(t *testing.T) {
		cm, err := Vectorize(themeCorpus, 1, 1.0)
		require.NoError(t, err)
		vocab := cm.Vocabulary()
		assert.IsNonDecreasing(t, vocab)

		again, err := Vectorize(themeCorpus, 1, 1.0)
		require.NoError(t, err)
		assert.Equal(t, vocab, again.Vocabulary())
	})

	t.Run("document frequency band filters the vocabulary", func(t *testing.T) {
		// min_df=2 keeps only terms appearing in at least two documents.
		cm, err := Vectorize(themeCorpus, 2, 1.0)
		require.NoError(t, err)
		for _, term := range cm.Vocabulary() {
			assert.Contains(t, []string{"hero", "the", "villain", "world"}, term)
		}
		assert.Contains(t, cm.Vocabulary(), "hero")
		assert.NotContains(t, cm.Vocabulary(), "saves")
	})

	t.Run("rows are unit length", func(t *testing.T) {
		cm, err := Vectorize(themeCorpus, 1, 1.0)
		require.NoError(t, err)
		for d := 0; d < cm.NumDocs(); d++ {
			var sq float64
			for _, w := range cm.Row(d) {
				sq += w * w
			}
			assert.InDelta(t, 1.0, math.Sqrt(sq), 1e-9)
		}
	})

	t.Run("accented terms fold onto their plain form", func(t *testing.T) {
		cm, err := Vectorize([]string{"Amélie in Paris", "Amelie again"}, 1, 1.0)
		require.NoError(t, err)
		vocab := cm.Vocabulary()
		assert.Contains(t, vocab, "amelie")
		assert.NotContains(t, vocab, "amélie")
	})

	t.Run("empty corpus is rejected", func(t *testing.T) {
		_, err := Vectorize(nil, 1, 1.0)
		assert.ErrorIs(t, err, ErrEmptyCorpus)

		_, err = Vectorize([]string{"!!!", "..."}, 1, 1.0)
		assert.ErrorIs(t, err, ErrEmptyCorpus)
	})
}

func TestProfile(t *testing.T) {
	cm, err := Vectorize(themeCorpus, 1, 1.0)
	require.NoError(t, err)

	t.Run("profile is the mean of the history rows", func(t *testing.T) {
		profile := Profile([]int{0, 2}, cm)
		require.NotNil(t, profile)
		require.Len(t, profile, cm.VocabSize())

		for i := range profile {
			want := (cm.Row(0)[i] + cm.Row(2)[i]) / 2
			assert.InDelta(t, want, profile[i], 1e-12)
		}
	})

	t.Run("nil for empty history", func(t *testing.T) {
		assert.Nil(t, Profile(nil, cm))
	})

	t.Run("nil when no index is known", func(t *testing.T) {
		assert.Nil(t, Profile([]int{17, -1, 99}, cm))
	})

	t.Run("unknown indices are filtered, known ones kept", func(t *testing.T) {
		profile := Profile([]int{0, 99}, cm)
		require.NotNil(t, profile)
		for i := range profile {
			assert.InDelta(t, cm.Row(0)[i], profile[i], 1e-12)
		}
	})
}

func TestCosineSimilarity(t *testing.T) {
	cm, err := Vectorize(themeCorpus, 1, 1.0)
	require.NoError(t, err)

	t.Run("document is most similar to itself", func(t *testing.T) {
		profile := Profile([]int{1}, cm)
		require.NotNil(t, profile)
		self := cm.CosineSimilarity(profile, 1)
		assert.InDelta(t, 1.0, self, 1e-9)
		assert.Greater(t, self, cm.CosineSimilarity(profile, 0))
	})

	t.Run("similarity stays within [0,1] for tf-idf vectors", func(t *testing.T) {
		profile := Profile([]int{0, 2}, cm)
		for d := 0; d < cm.NumDocs(); d++ {
			s := cm.CosineSimilarity(profile, d)
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 1.0+1e-9)
		}
	})

	t.Run("zero for out-of-range document", func(t *testing.T) {
		profile := Profile([]int{0}, cm)
		assert.Zero(t, cm.CosineSimilarity(profile, 42))
	})
}
