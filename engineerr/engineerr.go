// Package engineerr classifies the errors this engine's stages raise
// into a small fixed set of Kinds, so that a stage graph's abort logic
// and a command-line frontend's exit codes can react to the kind of
// failure without string-matching error messages.
//
// elprep mostly reports fatal conditions straight to log.Fatal from
// deep inside sam/*.go; this engine instead threads typed, wrapped
// errors back up through Stage.Run and lets the caller of RunChain
// decide what to do, using github.com/pkg/errors for the wrapping and
// stack-trace capture.
package engineerr

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies why an operation failed.
type Kind int

const (
	// Unknown is the zero Kind, used for errors that did not originate
	// in this package.
	Unknown Kind = iota

	// IOError covers failures reading or writing the underlying
	// transport: a closed file, a broken pipe, a disk full.
	IOError

	// MalformedRecord covers data that parses structurally but
	// violates a format invariant: a bad magic number, a cigar op code
	// outside the known vocabulary, a checksum mismatch.
	MalformedRecord

	// TruncatedStream covers a stream that ends before the format says
	// it should: a partial block, a missing end-of-file marker.
	TruncatedStream

	// UnsupportedVersion covers a well-formed header declaring a
	// format version this engine does not know how to read.
	UnsupportedVersion

	// SortError covers failures in the in-memory or external sort
	// components: a comparator panic, a temp file that could not be
	// created or read back.
	SortError

	// GraphError covers failures in the stage graph runtime itself,
	// as opposed to failures in the data a stage is processing: a
	// misconfigured fan-out, a sink wired to the wrong source.
	GraphError

	// ResourceError covers failures obtaining a resource the engine
	// needs to proceed that are not simply I/O: running out of file
	// descriptors or temp directory space, a worker pool that could
	// not be sized.
	ResourceError
)

func (k Kind) String() string {
	switch k {
	case IOError:
		return "IOError"
	case MalformedRecord:
		return "MalformedRecord"
	case TruncatedStream:
		return "TruncatedStream"
	case UnsupportedVersion:
		return "UnsupportedVersion"
	case SortError:
		return "SortError"
	case GraphError:
		return "GraphError"
	case ResourceError:
		return "ResourceError"
	default:
		return "Unknown"
	}
}

// engineError is the concrete error type this package produces. It is
// deliberately unexported: callers are expected to inspect it through
// Diagnose rather than by type assertion.
type engineError struct {
	kind  Kind
	cause error
}

func (e *engineError) Error() string {
	if e.cause == nil {
		return e.kind.String()
	}
	return fmt.Sprintf("%s: %s", e.kind, e.cause)
}

func (e *engineError) Unwrap() error { return e.cause }

// New returns an error of the given kind carrying message.
func New(kind Kind, message string) error {
	return &engineError{kind: kind, cause: errors.New(message)}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &engineError{kind: kind, cause: errors.Errorf(format, args...)}
}

// Wrap annotates cause with message and classifies it as kind. Wrap
// returns nil if cause is nil.
func Wrap(kind Kind, cause error, message string) error {
	if cause == nil {
		return nil
	}
	return &engineError{kind: kind, cause: errors.Wrap(cause, message)}
}

// Diagnose extracts the Kind of err, if err (or something it wraps)
// was produced by this package. ok is false for errors this package
// did not originate, in which case callers should treat the failure as
// Unknown rather than assume a specific kind.
func Diagnose(err error) (kind Kind, ok bool) {
	var e *engineError
	for err != nil {
		if ee, isEngineErr := err.(*engineError); isEngineErr {
			e = ee
			break
		}
		err = errors.Unwrap(err)
	}
	if e == nil {
		return Unknown, false
	}
	return e.kind, true
}

// Is reports whether err was classified as kind by this package.
func Is(err error, kind Kind) bool {
	k, ok := Diagnose(err)
	return ok && k == kind
}

// Describe renders err as the one-line diagnostic a stage graph's
// RunChain surfaces to its caller: the Kind's name followed by err's
// message chain, omitting the stack trace errors.Wrap attaches (which
// only surfaces via %+v, never via Error()). err == nil renders as
// "ok".
func Describe(err error) string {
	if err == nil {
		return "ok"
	}
	kind, ok := Diagnose(err)
	if !ok {
		return err.Error()
	}
	inner := stderrors.Unwrap(err)
	if inner == nil {
		inner = err
	}
	return fmt.Sprintf("%s: %s", kind, inner)
}
