package layer

import "context"

// FirstSuccess tries candidates in order and returns the first result
// accepted by ok, with the index of the candidate that produced it. Attempt
// errors and rejected results move on to the next candidate. It returns
// found=false when every candidate is exhausted or ctx is done; no attempt
// is made for an empty candidate list.
func FirstSuccess[C, T any](
	ctx context.Context,
	candidates []C,
	attempt func(ctx context.Context, c C) (T, error),
	ok func(T) bool,
) (result T, index int, found bool) {
	for i, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		v, err := attempt(ctx, c)
		if err != nil || !ok(v) {
			continue
		}
		return v, i, true
	}
	var zero T
	return zero, -1, false
}
