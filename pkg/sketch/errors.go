package sketch

import "errors"

// ErrOutOfRange reports a quantile query against a summary holding zero
// observations.
var ErrOutOfRange = errors.New("sketch: summary has no observations")

// InvalidArgumentError reports a caller-supplied argument that violates the
// sketch contract, e.g. a probability outside [0, 1].
type InvalidArgumentError struct {
	Msg string
}

func (e *InvalidArgumentError) Error() string {
	return "sketch: invalid argument: " + e.Msg
}

// StateError reports a lifecycle violation, e.g. setting a sparse summary's
// total count twice with conflicting values.
type StateError struct {
	Msg string
}

func (e *StateError) Error() string {
	return "sketch: " + e.Msg
}

// ConfigMismatchError reports an attempt to merge summaries built with
// different error or compression configuration. The rank-error proof assumes
// both sides share a configuration, so such merges are rejected.
type ConfigMismatchError struct {
	Msg string
}

func (e *ConfigMismatchError) Error() string {
	return "sketch: config mismatch: " + e.Msg
}
