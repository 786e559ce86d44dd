package admintunnel

import (
	"time"

	"github.com/xtaci/smux"
)

// SmuxParams configures the admin channel's smux layer. Named-field
// construction avoids the positional-argument mismatch the teacher's own
// std/smuxcfg.go and server/main.go disagree on (the latter calls a
// SmuxConfigParams struct the former never declares) — this package only
// ever had one call site to keep consistent.
type SmuxParams struct {
	Version          int
	MaxReceiveBuffer int
	MaxStreamBuffer  int
	MaxFrameSize     int
	KeepAliveSeconds int
}

// buildSmuxConfig builds and verifies a smux.Config for the admin channel.
func buildSmuxConfig(p SmuxParams) (*smux.Config, error) {
	cfg := smux.DefaultConfig()
	cfg.Version = p.Version
	cfg.MaxReceiveBuffer = p.MaxReceiveBuffer
	cfg.MaxStreamBuffer = p.MaxStreamBuffer
	cfg.MaxFrameSize = p.MaxFrameSize
	cfg.KeepAliveInterval = time.Duration(p.KeepAliveSeconds) * time.Second
	return cfg, smux.VerifyConfig(cfg)
}
