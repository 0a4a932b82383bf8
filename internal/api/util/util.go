package util

// ApplyConversion maps every model in the slice through the converter,
// returning the converted values in the same order. A nil slice produces
// an empty, non-nil result so that JSON encodes it as [] rather than null.
func ApplyConversion[T any, K any](models []T, converter func(T) K) []K {
	dtos := make([]K, 0, len(models))
	for _, v := range models {
		dtos = append(dtos, converter(v))
	}

	return dtos
}
