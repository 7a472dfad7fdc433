package mailer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderConfirmation(t *testing.T) {
	html, err := RenderConfirmation("Maison Doré", "https://example.com/confirm?token=abc123")
	require.NoError(t, err)

	assert.Contains(t, html, "Maison Doré")
	assert.Contains(t, html, `href="https://example.com/confirm?token=abc123"`)
	assert.Contains(t, html, "expires in 24 hours")
}

func TestConfirmURL(t *testing.T) {
	got := ConfirmURL("https://example.com/confirm", "ab+c/1")
	assert.Equal(t, "https://example.com/confirm?token=ab%2Bc%2F1", got)
}
