package model

import "encoding/json"

// Kind classifies a failed remote operation.
type Kind string

const (
	// KindAuthentication means the login endpoint rejected the credentials
	// or could not be reached.
	KindAuthentication Kind = "authentication"
	// KindFetch means a data endpoint failed after (or without) a login.
	KindFetch Kind = "fetch"
)

const (
	MsgInvalidCredentials = "invalid credentials"
	MsgNotAuthenticated   = "not authenticated or invalid credentials"
)

// Error is the structured error marker carried by a failed Result.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"error"`
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Result is either a value or an error marker. Callers branch on OK()
// instead of unwinding, so "no data" and "data unavailable for a known
// reason" stay distinguishable.
type Result[T any] struct {
	Value T
	Err   *Error
}

func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func Fail[T any](kind Kind, msg string) Result[T] {
	return Result[T]{Err: &Error{Kind: kind, Message: msg}}
}

// FailWith re-types an existing error marker.
func FailWith[T any](e *Error) Result[T] {
	return Result[T]{Err: e}
}

func (r Result[T]) OK() bool {
	return r.Err == nil
}

// MarshalJSON encodes the value itself, or {"error": message} on failure.
func (r Result[T]) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{Error: r.Err.Message})
	}
	return json.Marshal(r.Value)
}
