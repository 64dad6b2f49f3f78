package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServiceErrorWrapsSentinel(t *testing.T) {
	err := New("notes.get", "note_not_found", ErrNotFound)

	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, "notes.get.note_not_found", Code(err))
	require.Equal(t, "notes.get.note_not_found: not found", err.Error())
}

func TestServiceErrorWithoutCause(t *testing.T) {
	err := New("sessions.create", "missing_user", nil)
	require.Equal(t, "sessions.create.missing_user", err.Error())
	require.Nil(t, errors.Unwrap(err))
}

func TestValidationErrorUnwrapsToSentinel(t *testing.T) {
	validation := NewValidationError("email", "is required")
	validation.Add("password", "must be at least 8 characters")

	wrapped := New("users.register", "invalid_input", validation)

	require.ErrorIs(t, wrapped, ErrValidation)
	fields := FieldErrors(wrapped)
	require.Len(t, fields, 2)
	require.Equal(t, "email", fields[0].Field)
	require.Contains(t, wrapped.Error(), "password: must be at least 8 characters")
}

func TestValidationErrorOrNil(t *testing.T) {
	var empty ValidationError
	require.NoError(t, empty.OrNil())

	empty.Add("name", "is required")
	require.Error(t, empty.OrNil())
}

func TestCodeOfPlainError(t *testing.T) {
	require.Empty(t, Code(errors.New("boom")))
}
