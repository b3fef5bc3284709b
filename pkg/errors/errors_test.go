package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap("transport_unreachable", "analysis backend unreachable", cause)

	require.ErrorIs(t, err, cause)
	require.Equal(t, "analysis backend unreachable: dial tcp: refused", err.Error())
	require.True(t, IsCode(err, "transport_unreachable"))
	require.False(t, IsCode(err, "transport_timeout"))
}

func TestCodeOfThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("send: %w", Wrap("server_error", "status 500", nil))
	require.Equal(t, "server_error", CodeOf(err))
	require.Equal(t, "", CodeOf(errors.New("plain")))
	require.False(t, IsCode(errors.New("plain"), ""))
}
