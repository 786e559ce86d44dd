package admintunnel

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	err := writeResponse(&buf, Response{OK: true, Stats: &StatsSnapshot{SessionCount: 3}})
	require.NoError(t, err)

	var decoded Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.True(t, decoded.OK)
	require.Equal(t, 3, decoded.Stats.SessionCount)
}

func TestReadRequestDecodesCommand(t *testing.T) {
	req, err := readRequest(bytes.NewReader([]byte(`{"command":"kick","convId":42}`)))
	require.NoError(t, err)
	require.Equal(t, CommandKick, req.Command)
	require.Equal(t, int64(42), req.ConvID)
}
