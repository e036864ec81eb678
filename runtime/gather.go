package runtime

// slot carries one branch outcome back to gather.
type slot[T any] struct {
	index int
	value T
	err   error
}

// gather runs fn(0..n-1) concurrently and returns the values in index order.
// It returns on the first error without waiting for, or cancelling, the
// remaining branches. The channel is buffered to n so late branches never
// block after gather has returned.
func gather[T any](n int, fn func(i int) (T, error)) ([]T, error) {
	done := make(chan slot[T], n)
	for i := range n {
		go func() {
			v, err := fn(i)
			done <- slot[T]{index: i, value: v, err: err}
		}()
	}

	out := make([]T, n)
	for range n {
		s := <-done
		if s.err != nil {
			return nil, s.err
		}
		out[s.index] = s.value
	}
	return out, nil
}

// join runs the branches concurrently and returns the first error, or nil
// once every branch has succeeded.
func join(branches ...func() error) error {
	_, err := gather(len(branches), func(i int) (struct{}, error) {
		return struct{}{}, branches[i]()
	})
	return err
}
