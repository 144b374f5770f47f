package generation

import (
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestSplitConfidence_Marker(t *testing.T) {
	answer, conf := splitConfidence("The flow starts at intake.\nCONFIDENCE: 0.85")
	assert.Equal(t, "The flow starts at intake.", answer)
	assert.Equal(t, 0.85, conf)
}

func TestSplitConfidence_Missing(t *testing.T) {
	answer, conf := splitConfidence("No marker here.")
	assert.Equal(t, "No marker here.", answer)
	assert.Equal(t, 0.5, conf)
}

func TestSplitConfidence_Clamped(t *testing.T) {
	_, conf := splitConfidence("a\nCONFIDENCE: 1.7")
	assert.Equal(t, 1.0, conf)

	_, conf = splitConfidence("a\nCONFIDENCE: -0.3")
	assert.Equal(t, 0.0, conf)
}

func TestSplitConfidence_Unparsable(t *testing.T) {
	answer, conf := splitConfidence("a\nCONFIDENCE: high")
	assert.Equal(t, "a\nCONFIDENCE: high", answer)
	assert.Equal(t, 0.5, conf)
}

func TestClassifyError_RateLimitIsTransient(t *testing.T) {
	err := classifyError(&openai.APIError{HTTPStatusCode: 429})
	assert.ErrorIs(t, err, errTransient)
}

func TestClassifyError_BadRequestIsNot(t *testing.T) {
	apiErr := &openai.APIError{HTTPStatusCode: 400}
	err := classifyError(apiErr)
	assert.False(t, errors.Is(err, errTransient))
}

func TestClassifyError_TransportIsTransient(t *testing.T) {
	err := classifyError(errors.New("connection reset"))
	assert.ErrorIs(t, err, errTransient)
}
