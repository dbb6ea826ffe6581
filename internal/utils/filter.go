package utils

// FilterArray returns the elements of input for which keep is true, in order.
// input is not modified.
func FilterArray[T any](input []T, keep func(T) bool) []T {
	out := make([]T, 0, len(input))
	for _, v := range input {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}
