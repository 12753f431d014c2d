// Package chainErrors defines the error kinds surfaced by the chain query layer.
//
// Callers match kinds with errors.Is; every layer wraps with context but never replaces the kind.
package chainErrors

import "github.com/pkg/errors"

var (
	// ErrNotFound means the requested key, slot or block does not exist at the query point.
	ErrNotFound = errors.New("not found")

	// ErrRpcFailure means the call to the node itself failed: transport, server error,
	// timeout or a malformed response.
	ErrRpcFailure = errors.New("rpc failure")

	// ErrDecodeFailure means a value was present but could not be decoded as the expected type.
	ErrDecodeFailure = errors.New("decode failure")

	// ErrInvalidRange means a search was requested over an empty or degenerate block range.
	ErrInvalidRange = errors.New("invalid range")
)

// kindError attaches a kind to an underlying cause so that both errors.Is(err, kind) and the
// original message survive wrapping.
type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Is(target error) bool {
	return target == e.kind
}

func (e *kindError) Unwrap() error {
	return e.cause
}

// WithKind tags err with kind. A nil err yields nil.
func WithKind(kind error, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return &kindError{kind: kind, cause: err}
}

// RpcFailure wraps err as an ErrRpcFailure with a formatted message.
func RpcFailure(err error, format string, args ...interface{}) error {
	return WithKind(ErrRpcFailure, errors.Wrapf(err, format, args...))
}

// NotFound returns an ErrNotFound with a formatted message.
func NotFound(format string, args ...interface{}) error {
	return errors.Wrapf(ErrNotFound, format, args...)
}

// DecodeFailure returns an ErrDecodeFailure with a formatted message.
func DecodeFailure(format string, args ...interface{}) error {
	return errors.Wrapf(ErrDecodeFailure, format, args...)
}

// InvalidRange returns an ErrInvalidRange with a formatted message.
func InvalidRange(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidRange, format, args...)
}
