package recommender

import "errors"

var (
	// ErrInsufficientData is returned when there are too few interactions
	// to train on. Fatal to the training run.
	ErrInsufficientData = errors.New("recommender: at least 2 interaction records required")

	// ErrUnknownUser is returned when a user index outside the trained
	// range is queried. Fatal to that query only.
	ErrUnknownUser = errors.New("recommender: user index out of trained range")

	// ErrEmptyCorpus is returned when vectorization is asked to run over
	// a corpus with no documents or no surviving vocabulary terms.
	ErrEmptyCorpus = errors.New("recommender: corpus has no usable terms")
)
