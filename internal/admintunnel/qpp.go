package admintunnel

import (
	"fmt"
	"io"
	"math/big"

	"github.com/xtaci/qpp"
)

// qppPower is the permutation dimension used throughout the admin channel.
const qppPower = 8

// validateQPPParams inspects the caller-provided QPP settings and returns a
// fatal error when the configuration can't work at all, plus non-fatal
// warnings the caller can log while still proceeding.
func validateQPPParams(count int, key string) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("qpp count must be greater than 0 when QPP is enabled")
	}

	var warnings []string

	minSeedLength := qpp.QPPMinimumSeedLength(qppPower)
	if len(key) < minSeedLength {
		warnings = append(warnings, fmt.Sprintf("qpp: key has %d bytes, need at least %d", len(key), minSeedLength))
	}

	minPads := qpp.QPPMinimumPads(qppPower)
	if count < minPads {
		warnings = append(warnings, fmt.Sprintf("qpp: count %d, need at least %d", count, minPads))
	}

	if new(big.Int).GCD(nil, nil, big.NewInt(int64(count)), big.NewInt(qppPower)).Int64() != 1 {
		warnings = append(warnings, fmt.Sprintf("qpp: count %d should be prime for best security", count))
	}

	return warnings, nil
}

// qppPort wraps an io.ReadWriteCloser with Quantum Permutation Pad
// obfuscation, an optional extra layer over the admin channel's cipher.
type qppPort struct {
	underlying io.ReadWriteCloser

	pad   *qpp.QuantumPermutationPad
	wprng *qpp.Rand
	rprng *qpp.Rand
}

func newQPPPort(underlying io.ReadWriteCloser, pad *qpp.QuantumPermutationPad, seed []byte) *qppPort {
	return &qppPort{
		underlying: underlying,
		pad:        pad,
		wprng:      qpp.CreatePRNG(seed),
		rprng:      qpp.CreatePRNG(seed),
	}
}

func (p *qppPort) Read(b []byte) (int, error) {
	n, err := p.underlying.Read(b)
	p.pad.DecryptWithPRNG(b[:n], p.rprng)
	return n, err
}

func (p *qppPort) Write(b []byte) (int, error) {
	p.pad.EncryptWithPRNG(b, p.wprng)
	return p.underlying.Write(b)
}

func (p *qppPort) Close() error { return p.underlying.Close() }
