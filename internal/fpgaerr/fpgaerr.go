// Package fpgaerr defines the error-kind taxonomy shared by build and search.
//
// Every fatal or semi-fatal condition in the pipeline is one of these kinds,
// wrapped with call-site context via github.com/pkg/errors so that both
// errors.Cause and the stdlib errors.Is/As machinery can recover the kind.
package fpgaerr

import "github.com/pkg/errors"

var (
	// InvalidConfig signals a bad parameter or a missing file at parse time.
	InvalidConfig = errors.New("invalid configuration")
	// ConsistencyError signals on-disk artifacts disagree with meta.
	ConsistencyError = errors.New("consistency error")
	// QueueClosed signals a producer enqueued after the cart queue closed.
	QueueClosed = errors.New("slotted cart queue is closed")
	// NoState signals a consumer read an invalid cart handle.
	NoState = errors.New("no state: cart handle is invalid")
	// IoError signals an I/O failure on indices, references, queries or SAM.
	IoError = errors.New("i/o error")
	// AlignmentEmpty signals an alignment produced no traceback.
	AlignmentEmpty = errors.New("alignment produced no traceback")
)

// Wrap annotates err with msg while preserving kind for errors.Is(err, kind).
func Wrap(kind error, msg string) error {
	return errors.Wrap(kind, msg)
}

// Wrapf is Wrap with format arguments.
func Wrapf(kind error, format string, args ...interface{}) error {
	return errors.Wrapf(kind, format, args...)
}
