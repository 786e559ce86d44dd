package admintunnel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateQPPParamsZeroCountFails(t *testing.T) {
	_, err := validateQPPParams(0, "key")
	require.Error(t, err)
}

func TestValidateQPPParamsWarnsOnShortKeyAndNonPrimeCount(t *testing.T) {
	warnings, err := validateQPPParams(62, "short")
	require.NoError(t, err)
	require.NotEmpty(t, warnings)

	joined := strings.Join(warnings, "\n")
	require.Contains(t, joined, "key")
}
