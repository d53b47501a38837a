package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewID(t *testing.T) {
	a := NewID("alert")
	b := NewID("alert")

	assert.True(t, strings.HasPrefix(a, "alert-"))
	assert.Len(t, a, len("alert-")+32)
	assert.NotEqual(t, a, b)
	assert.Len(t, NewID(""), 32)
}
