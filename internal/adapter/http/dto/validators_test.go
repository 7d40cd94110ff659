package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeStringRe(t *testing.T) {
	valid := []string{"order.created", "payment_refunded", "user-signup", "Event123"}
	for _, s := range valid {
		assert.True(t, safeStringRe.MatchString(s), "expected %q to be valid", s)
	}

	invalid := []string{"", "order created", "order/created", "<script>", "a;b"}
	for _, s := range invalid {
		assert.False(t, safeStringRe.MatchString(s), "expected %q to be invalid", s)
	}
}

func TestSanitizeStruct(t *testing.T) {
	extra := "  <img src=x>  "
	type sample struct {
		Name  string
		Note  *string
		Count int
	}
	s := &sample{Name: "  <b>bold</b> ", Note: &extra, Count: 3}

	SanitizeStruct(s)

	assert.Equal(t, "&lt;b&gt;bold&lt;/b&gt;", s.Name)
	assert.Equal(t, "&lt;img src=x&gt;", *s.Note)
	assert.Equal(t, 3, s.Count)
}

func TestSanitizeStruct_NonStructIsNoop(t *testing.T) {
	v := "plain"
	SanitizeStruct(&v)
	SanitizeStruct(42)
	assert.Equal(t, "plain", v)
}
