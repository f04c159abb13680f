package zaps

import "github.com/google/uuid"

// GenerateID returns a random identifier with the given prefix, e.g.
// "run-3f2a...".
func GenerateID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
