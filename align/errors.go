package align

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrShape is returned when matrix dimensions violate a hard precondition.
	ErrShape = errors.New("matrix shape violates precondition")
	// ErrSingularRotation is returned when an extrinsic's rotation block cannot be inverted.
	ErrSingularRotation = errors.New("rotation block is singular")
	// ErrSingularTransform is returned when a similarity transform cannot be inverted.
	ErrSingularTransform = errors.New("similarity transform is singular")
	// ErrFrameIndexMismatch is returned when the clip and scan passes disagree on a clip's frame count.
	ErrFrameIndexMismatch = errors.New("clip and scan records use different frame index spaces")

	ErrInvalidShape       = errors.New("3xN point matrices with equal N are required")
	ErrInsufficientPoints = errors.New("at least 3 correspondences are required")
	ErrNoCorrespondence   = errors.New("no shared frame identifiers")
	ErrFactorization      = errors.New("singular value decomposition failed")
)

// FitErrorKind classifies why a similarity fit produced no transform.
type FitErrorKind int

const (
	FitInvalidShape FitErrorKind = iota + 1
	FitInsufficientPoints
	FitNoCorrespondence
	FitDegenerate
)

func (k FitErrorKind) String() string {
	switch k {
	case FitInvalidShape:
		return "invalid shape"
	case FitInsufficientPoints:
		return "insufficient points"
	case FitNoCorrespondence:
		return "no correspondence"
	case FitDegenerate:
		return "degenerate"
	default:
		return fmt.Sprintf("FitErrorKind(%d)", int(k))
	}
}

// FitError is the failure arm of a similarity fit.
type FitError struct {
	Kind   FitErrorKind
	Detail string
	cause  error
}

func (e *FitError) Error() string {
	if e.Detail == "" {
		return "fit: " + e.Unwrap().Error()
	}
	return fmt.Sprintf("fit: %s (%s)", e.Unwrap().Error(), e.Detail)
}

// Unwrap exposes the sentinel for the kind, or the underlying cause when set.
func (e *FitError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	switch e.Kind {
	case FitInvalidShape:
		return ErrInvalidShape
	case FitInsufficientPoints:
		return ErrInsufficientPoints
	case FitNoCorrespondence:
		return ErrNoCorrespondence
	default:
		return ErrFactorization
	}
}

func newFitError(kind FitErrorKind, format string, args ...interface{}) *FitError {
	return &FitError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func shapeErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrShape, format, args...)
}
