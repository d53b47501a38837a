package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID generates a prefixed random identifier such as "alert-1b9d6bcd..."
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}
