package models

// FullNameKey is the synthetic pinned key shown instead of the first and
// last name fields.
const FullNameKey = "fullName"

// NormalizePinned rewrites a pinned list so that firstName and lastName are
// replaced by a single fullName at the position of the first of them, and
// every key appears at most once. Empty keys are dropped. The function is
// idempotent.
func NormalizePinned(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))

	for _, k := range keys {
		if k == KeyFirstName || k == KeyLastName {
			k = FullNameKey
		}
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// FullName joins first and last name with a single space, skipping blanks.
func FullName(values map[string]string) string {
	first, last := values[KeyFirstName], values[KeyLastName]
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}

// PinnedValue resolves the display value of a pinned key.
func PinnedValue(key string, values map[string]string) string {
	if key == FullNameKey {
		return FullName(values)
	}
	return values[key]
}
