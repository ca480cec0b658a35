package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocument_Text(t *testing.T) {
	var doc Document
	assert.False(t, doc.HasText())
	assert.Equal(t, "", doc.TextOrEmpty())

	blank := ""
	doc.Text = &blank
	assert.False(t, doc.HasText())

	text := "The Supplier shall indemnify the Customer."
	doc.Text = &text
	assert.True(t, doc.HasText())
	assert.Equal(t, text, doc.TextOrEmpty())
}
