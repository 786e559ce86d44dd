package handshake

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsControl(t *testing.T) {
	require.True(t, IsControl(20))
	require.False(t, IsControl(19))
	require.False(t, IsControl(21))
	require.False(t, IsControl(0))
}

func TestEncodeDecodeConnect(t *testing.T) {
	buf := EncodeConnect(7)
	require.Len(t, buf, Size)
	c := Decode(buf)
	require.Equal(t, CodeConnect, c.Code)
	require.Equal(t, int32(7), c.Enet)
}

func TestEncodeDecodeDisconnect(t *testing.T) {
	buf := EncodeDisconnect(-3)
	c := Decode(buf)
	require.Equal(t, CodeDisconnect, c.Code)
	require.Equal(t, int32(-3), c.Enet)
}

func TestDecodeIgnoresReservedFields(t *testing.T) {
	buf := make([]byte, Size)
	buf[0], buf[1], buf[2], buf[3] = 0, 0, 0, 255
	// poison the reserved regions; Decode must not be perturbed by them
	for i := 4; i < 12; i++ {
		buf[i] = 0xAA
	}
	buf[15] = 9
	for i := 16; i < 20; i++ {
		buf[i] = 0xAA
	}
	c := Decode(buf)
	require.Equal(t, CodeConnect, c.Code)
	require.Equal(t, int32(9), c.Enet)
}

func TestUnrecognizedCodeDecodesButIsIgnoredByCaller(t *testing.T) {
	buf := make([]byte, Size)
	buf[3] = 42
	c := Decode(buf)
	require.Equal(t, int32(42), c.Code)
	require.NotEqual(t, CodeConnect, c.Code)
	require.NotEqual(t, CodeDisconnect, c.Code)
}
