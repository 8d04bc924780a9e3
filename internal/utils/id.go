package utils

import (
	"strconv"

	"github.com/google/uuid"
)

// NewID returns a random identifier for a connection handle.
func NewID() string {
	return uuid.NewString()
}

// FormatUserID renders a numeric user id the way it appears on the wire.
func FormatUserID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ParseUserID parses a wire user id. Only positive integers are valid.
func ParseUserID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
