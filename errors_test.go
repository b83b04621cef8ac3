package cofs_test

import (
	"errors"
	"testing"

	"github.com/MrBad/cofs"
	"github.com/stretchr/testify/assert"
)

func TestErrorKindWithMessage(t *testing.T) {
	err := cofs.ErrNoSpace.WithMessage("bitmap exhausted")
	assert.Equal(t, "no space left on device: bitmap exhausted", err.Error())
	assert.ErrorIs(t, err, cofs.ErrNoSpace)
}

func TestErrorKindWrap(t *testing.T) {
	cause := errors.New("device offline")
	err := cofs.ErrIO.Wrap(cause)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, cofs.ErrIO)
}

func TestErrorKindDoesNotMatchUnrelatedKind(t *testing.T) {
	err := cofs.ErrNoSpace.WithMessage("x")
	assert.NotErrorIs(t, err, cofs.ErrNoInodes)
}
