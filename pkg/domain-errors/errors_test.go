package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodes(t *testing.T) {
	t.Run("HasCode walks wrapped chain", func(t *testing.T) {
		base := New(CodeInsufficientBalance, "device cannot bond")
		err := Wrap(base, CodeInternal, "reserve failed")

		assert.True(t, HasCode(err, CodeInternal))
		assert.True(t, HasCode(err, CodeInsufficientBalance))
		assert.False(t, HasCode(err, CodeNoDevice))
		assert.Equal(t, CodeInternal, CodeOf(err))
	})

	t.Run("HasCode sees through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeOverdue, "deadline passed"))
		assert.True(t, HasCode(err, CodeOverdue))
		assert.True(t, Is(err, CodeOverdue))
	})

	t.Run("uncoded errors are internal", func(t *testing.T) {
		err := errors.New("boom")
		assert.Equal(t, CodeInternal, CodeOf(err))
		assert.False(t, HasCode(err, CodeInternal))
	})

	t.Run("Wrap nil is nil", func(t *testing.T) {
		require.NoError(t, Wrap(nil, CodeInternal, "nothing"))
	})

	t.Run("error text includes cause", func(t *testing.T) {
		err := Wrap(errors.New("socket closed"), CodeCannotReachDestination, "send failed")
		assert.Equal(t, "send failed: socket closed", err.Error())
	})
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeDeviceExists:           http.StatusConflict,
		CodeIllegalState:           http.StatusConflict,
		CodeNoDevice:               http.StatusNotFound,
		CodeNoOrder:                http.StatusNotFound,
		CodeOverdue:                http.StatusGone,
		CodeBadOrderDetails:        http.StatusBadRequest,
		CodeDeviceLowBail:          http.StatusPaymentRequired,
		CodeInsufficientBalance:    http.StatusPaymentRequired,
		CodeProhibited:             http.StatusForbidden,
		CodeCannotReachDestination: http.StatusBadGateway,
		CodeUnauthorized:           http.StatusUnauthorized,
		CodeInternal:               http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, ToHTTPStatus(New(code, "x")), "code %s", code)
	}
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(errors.New("plain")))
}
