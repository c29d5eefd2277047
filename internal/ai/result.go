package ai

// Result carries the outcome of a best-effort step. A degraded result holds
// the safe default in Value and the reason it was used.
type Result[T any] struct {
	Value  T
	Reason error
}

func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func Degraded[T any](def T, reason error) Result[T] {
	return Result[T]{Value: def, Reason: reason}
}

func (r Result[T]) IsDegraded() bool {
	return r.Reason != nil
}
