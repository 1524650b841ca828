package media

// DefaultThumbWidth is the maximum derivative width in pixels.
const DefaultThumbWidth = 400

// Options is the configuration a Record captures at construction. It is a
// plain value: records keep their own copy and are unaffected by later changes
// to whatever the copy was taken from.
type Options struct {
	ThumbWidth int
}

// DefaultOptions returns the process-wide defaults.
func DefaultOptions() Options {
	return Options{ThumbWidth: DefaultThumbWidth}
}

// With returns a copy of o with overrides applied. Only "thumbWidth" is
// recognized; unknown keys and values of the wrong type are ignored.
func (o Options) With(overrides map[string]any) Options {
	if v, ok := IntValue(overrides["thumbWidth"]); ok && v > 0 {
		o.ThumbWidth = v
	}
	return o
}

// IntValue converts the numeric types that show up in override maps
// (Go literals and decoded JSON) to int.
func IntValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
