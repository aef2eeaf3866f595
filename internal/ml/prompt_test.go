package ml

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franckalain/labelverdict/internal/models"
)

func TestBuildPromptPersonas(t *testing.T) {
	req := &models.AnalysisRequest{Text: "sugar, salt", Age: 8}

	objective, err := BuildPrompt(req)
	require.NoError(t, err)
	assert.Contains(t, objective, "professional nutritionist")
	assert.Contains(t, objective, `"""`+"\nsugar, salt\n"+`"""`)
	assert.NotContains(t, objective, "dietary preferences")

	req.Persona = models.PersonaParent
	parent, err := BuildPrompt(req)
	require.NoError(t, err)
	assert.Contains(t, parent, "caring, experienced mother")
	assert.Contains(t, parent, "8 years old")

	req.Persona = "unknown"
	fallback, err := BuildPrompt(req)
	require.NoError(t, err)
	assert.Equal(t, objective, fallback)
}

func TestBuildPromptListsEveryCanonicalField(t *testing.T) {
	prompt, err := BuildPrompt(&models.AnalysisRequest{Image: pngHeader, Age: 30})
	require.NoError(t, err)
	for _, field := range []string{"overallHealth", "healthScore", "ageAppropriate", "ingredients", "pros", "cons", "dietaryWarnings", "recommendations", "advice", "verdict"} {
		assert.Contains(t, prompt, `"`+field+`"`)
	}
}

func TestDecodeImage(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(pngHeader)

	data, declared, err := DecodeImage("data:image/png;base64," + encoded)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
	assert.Equal(t, "image/png", declared)

	data, declared, err = DecodeImage(encoded)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
	assert.Empty(t, declared)

	_, _, err = DecodeImage("%%% not base64 %%%")
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestImageMIME(t *testing.T) {
	mime, err := ImageMIME(pngHeader, "")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	mime, err = ImageMIME([]byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10}, "")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)

	mime, err = ImageMIME([]byte("whatever"), "image/webp")
	require.NoError(t, err)
	assert.Equal(t, "image/webp", mime)

	_, err = ImageMIME([]byte("plain text ingredients"), "")
	assert.True(t, errors.Is(err, models.ErrValidation))
}
