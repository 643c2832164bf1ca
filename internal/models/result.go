package models

// Result carries either a value or the reason it could not be produced.
// Concurrent fan-outs return one Result per item so callers can aggregate
// without aborting on the first failure.
type Result[T any] struct {
	Value T
	Err   error
}

func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

func Fail[T any](err error) Result[T] { return Result[T]{Err: err} }

func (r Result[T]) OK() bool { return r.Err == nil }
