package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsCarryCodes(t *testing.T) {
	cases := []struct {
		err  error
		code Code
	}{
		{InvalidArg("bad input"), CodeInvalidArgument},
		{NotFound("missing"), CodeNotFound},
		{Unauthorized("no token"), CodeUnauthenticated},
		{Forbidden("not yours"), CodePermissionDenied},
		{Internal("broken"), CodeInternal},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.code, CodeOf(tc.err))
		assert.True(t, IsCode(tc.err, tc.code))
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(CodeInternal, "failed to persist", cause)

	assert.Equal(t, "failed to persist: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeInternal, CodeOf(err))
}

func TestSentinelMatchesWrappedCopy(t *testing.T) {
	// A sentinel survives an fmt.Errorf %w wrap and still matches by
	// code and message.
	wrapped := fmt.Errorf("during send: %w", ErrEmptyContent)

	assert.ErrorIs(t, wrapped, ErrEmptyContent)
	assert.Equal(t, CodeInvalidArgument, CodeOf(wrapped))
}

func TestCodeOfForeignError(t *testing.T) {
	assert.Equal(t, CodeUnknown, CodeOf(stderrors.New("plain")))
	assert.False(t, IsCode(stderrors.New("plain"), CodeInternal))
}

func TestAppErrorIsDistinguishesMessages(t *testing.T) {
	var app *AppError
	require.True(t, stderrors.As(ErrNotParticipant, &app))

	// Same code, different message: not the same sentinel.
	assert.NotErrorIs(t, ErrNotParticipant, ErrNotRecipient)
}
