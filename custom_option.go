package screenrecorder

// CustomOption is a backend-specific knob (for example an encoder name
// or a device option); backends pick the types they understand.
type CustomOption = any
type CustomOptions []CustomOption

func GetCustomOption[T any](in CustomOptions) (T, bool) {
	for _, item := range in {
		v, ok := item.(T)
		if ok {
			return v, ok
		}
	}

	var zeroValue T
	return zeroValue, false
}

func GetCustomOptions[T any](in CustomOptions) []T {
	var result []T
	for _, item := range in {
		if v, ok := item.(T); ok {
			result = append(result, v)
		}
	}
	return result
}
