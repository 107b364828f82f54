package types

// IsValidUserID reports whether id is 1-50 characters of
// alphanumerics, underscore, or hyphen.
func IsValidUserID(id string) bool {
	if len(id) == 0 || len(id) > 50 {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return false
		}
	}
	return true
}
