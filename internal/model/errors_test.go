package model

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDuplicateRegistrationError(t *testing.T) {
	known := &DuplicateRegistrationError{ResourceID: "res-1", ExistingID: "reg-9"}
	require.Equal(t, "already registered for resource res-1 (registration reg-9)", known.Error())

	unknown := &DuplicateRegistrationError{ResourceID: "res-1"}
	require.Equal(t, "already registered for resource res-1", unknown.Error())

	wrapped := fmt.Errorf("admit: %w", unknown)
	require.ErrorIs(t, wrapped, ErrDuplicateRegistration)
	require.True(t, IsDomain(wrapped))
}
