package domain

import (
	"github.com/pkg/errors"
)

// Duplicate or stale delta; drop it silently.
var ErrOrderBookUpdateIsOutdated = errors.New("order book update is outdated")

type SequencePolicy string

const (
	SequencePolicy_Contiguous SequencePolicy = "contiguous"
	SequencePolicy_Monotonic  SequencePolicy = "monotonic"
)

type DepthUpdateValidator interface {
	// if return nil, the update is valid
	IsValidUpd(sequence int64, lastSequence int64) error
	IsErrOutOfSequence(err error) bool
	IsErrOutdated(err error) bool
}

func NewDepthUpdateValidator(policy SequencePolicy) (DepthUpdateValidator, error) {
	switch policy {
	case SequencePolicy_Contiguous, "":
		return &ContiguousDepthUpdateValidator{}, nil
	case SequencePolicy_Monotonic:
		return &MonotonicDepthUpdateValidator{}, nil
	}
	return nil, errors.Errorf("unknown sequence policy %q", policy)
}

// ContiguousDepthUpdateValidator requires every delta to carry the immediate
// successor of the stored sequence.
type ContiguousDepthUpdateValidator struct{}

func (v *ContiguousDepthUpdateValidator) IsValidUpd(sequence int64, lastSequence int64) error {
	if sequence <= lastSequence {
		return ErrOrderBookUpdateIsOutdated
	}
	if sequence != lastSequence+1 {
		return errors.Wrapf(ErrSequenceGap, "expected %d, got %d", lastSequence+1, sequence)
	}
	return nil
}

func (v *ContiguousDepthUpdateValidator) IsErrOutOfSequence(err error) bool {
	return errors.Is(err, ErrSequenceGap)
}

func (v *ContiguousDepthUpdateValidator) IsErrOutdated(err error) bool {
	return errors.Is(err, ErrOrderBookUpdateIsOutdated)
}

// MonotonicDepthUpdateValidator accepts any newer sequence. Offsets on some
// feeds are shared across channels and are not dense per market.
type MonotonicDepthUpdateValidator struct{}

func (v *MonotonicDepthUpdateValidator) IsValidUpd(sequence int64, lastSequence int64) error {
	if sequence <= lastSequence {
		return ErrOrderBookUpdateIsOutdated
	}
	return nil
}

func (v *MonotonicDepthUpdateValidator) IsErrOutOfSequence(err error) bool {
	return errors.Is(err, ErrSequenceGap)
}

func (v *MonotonicDepthUpdateValidator) IsErrOutdated(err error) bool {
	return errors.Is(err, ErrOrderBookUpdateIsOutdated)
}
