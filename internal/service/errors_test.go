package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("issue: %w", transient("failed to store certificate", cause))

	assert.True(t, IsKind(err, KindTransient))
	assert.False(t, IsKind(err, KindConflict))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")

	fieldErr := invalidField("cgpa", "not a recognized grade")
	assert.Equal(t, "cgpa: not a recognized grade", fieldErr.Error())

	_, ok := AsError(errors.New("plain"))
	assert.False(t, ok)
}
