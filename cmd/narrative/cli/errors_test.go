package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSilentError_UnwrapsToOriginal(t *testing.T) {
	original := errors.New("boom")
	silent := NewSilentError(original)

	assert.Equal(t, "boom", silent.Error())
	assert.ErrorIs(t, silent, original)
}

func TestSilentError_ErrorsAsDetectsWrapping(t *testing.T) {
	err := NewSilentError(errors.New("setup failed"))

	var silent *SilentError
	assert.True(t, errors.As(err, &silent))
}
