// Package config defines the server's configuration surface and the
// urfave/cli flag set that populates it, mirroring the teacher's
// server/main.go and server/config.go: flags with defaults, an optional
// JSON file that overrides them wholesale, and a plain struct with JSON
// tags passed down to the rest of the program.
package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

// Config holds every knob the listener, dispatcher, and admin tunnel need.
// Fields through SmuxVer mirror the teacher's own Config verbatim since the
// admin tunnel reuses the same KCP+smux transport; the fields below that are
// new surface this spec introduces.
type Config struct {
	Listen      string `json:"listen"`
	Key         string `json:"key"`
	Crypt       string `json:"crypt"`
	Mode        string `json:"mode"`
	MTU         int    `json:"mtu"`
	SndWnd      int    `json:"sndwnd"`
	RcvWnd      int    `json:"rcvwnd"`
	DataShard   int    `json:"datashard"`
	ParityShard int    `json:"parityshard"`
	DSCP        int    `json:"dscp"`
	NoComp      bool   `json:"nocomp"`
	AckNodelay  bool   `json:"acknodelay"`
	NoDelay     int    `json:"nodelay"`
	Interval    int    `json:"interval"`
	Resend      int    `json:"resend"`
	SockBuf     int    `json:"sockbuf"`
	SmuxBuf     int    `json:"smuxbuf"`
	StreamBuf   int    `json:"streambuf"`
	SmuxVer     int    `json:"smuxver"`
	KeepAlive   int    `json:"keepalive"`
	Log         string `json:"log"`
	Quiet       bool   `json:"quiet"`
	QPP         bool   `json:"qpp"`
	QPPCount    int    `json:"qpp-count"`

	// ProxyProtocolV2 enables stripping a PROXY protocol v2 header off the
	// front of each inbound datagram before handshake/data classification.
	ProxyProtocolV2 bool `json:"proxy-protocol-v2"`
	// UseConvChannel selects the engine's ChannelManager-based session
	// lookup path instead of relying solely on the dispatcher's registry.
	UseConvChannel bool `json:"use-conv-channel"`
	// CRC32Check validates and strips a leading 4-byte CRC32 from each
	// datagram before SN-offset computation.
	CRC32Check bool `json:"crc32-check"`
	// FECAdapt toggles forward-error-correction-aware SN-offset handling in
	// the dispatcher; the FEC layer itself is out of scope here.
	FECAdapt bool `json:"fec-adapt"`
	// HeaderVariant selects "base" (28 bytes) or "hoyo" (32 bytes).
	HeaderVariant string `json:"header-variant"`
	// WaiterCap bounds the pending-handshake FIFO (spec.md §4.D); 0 means
	// use the package default.
	WaiterCap int `json:"waiter-cap"`
	// ExecutorQueueDepth bounds how many tasks a session's executor buffers.
	ExecutorQueueDepth int `json:"executor-queue-depth"`

	// AdminListen, when non-empty, starts the admin/diagnostics tunnel on
	// this address: a KCP+smux listener encrypted with Key and Crypt.
	AdminListen string `json:"admin-listen"`
}

// ParseJSON overrides cfg's fields from the JSON document at path.
func ParseJSON(cfg *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "config: opening override file %q", path)
	}
	defer file.Close()
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return errors.Wrapf(err, "config: decoding override file %q", path)
	}
	return nil
}

// Flags is the urfave/cli flag set for cmd/kcpgated.
func Flags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{Name: "listen,l", Value: ":29900", Usage: "udp listen address"},
		cli.StringFlag{Name: "key", Value: "it's a secrect", Usage: "pre-shared secret", EnvVar: "KCPGATED_KEY"},
		cli.StringFlag{Name: "crypt", Value: "aes", Usage: "aes, aes-128, aes-128-gcm, aes-192, salsa20, blowfish, twofish, cast5, 3des, tea, xtea, xor, sm4, none, null"},
		cli.StringFlag{Name: "mode", Value: "fast", Usage: "profiles: fast3, fast2, fast, normal, manual"},
		cli.IntFlag{Name: "mtu", Value: 1350, Usage: "maximum transmission unit for UDP packets"},
		cli.IntFlag{Name: "sndwnd", Value: 1024, Usage: "send window size(num of packets)"},
		cli.IntFlag{Name: "rcvwnd", Value: 1024, Usage: "receive window size(num of packets)"},
		cli.IntFlag{Name: "datashard,ds", Value: 10, Usage: "reed-solomon erasure coding - datashard"},
		cli.IntFlag{Name: "parityshard,ps", Value: 3, Usage: "reed-solomon erasure coding - parityshard"},
		cli.IntFlag{Name: "dscp", Value: 0, Usage: "DSCP(6bit)"},
		cli.BoolFlag{Name: "nocomp", Usage: "disable compression"},
		cli.BoolFlag{Name: "acknodelay", Hidden: true},
		cli.IntFlag{Name: "nodelay", Value: 0, Hidden: true},
		cli.IntFlag{Name: "interval", Value: 50, Hidden: true},
		cli.IntFlag{Name: "resend", Value: 0, Hidden: true},
		cli.IntFlag{Name: "sockbuf", Value: 4194304, Usage: "per-socket buffer in bytes"},
		cli.IntFlag{Name: "smuxver", Value: 2, Usage: "smux version, available 1,2"},
		cli.IntFlag{Name: "smuxbuf", Value: 4194304, Usage: "overall de-mux buffer in bytes"},
		cli.IntFlag{Name: "streambuf", Value: 2097152, Usage: "per stream receive buffer in bytes, smux v2+"},
		cli.IntFlag{Name: "keepalive", Value: 10, Usage: "seconds between heartbeats"},
		cli.StringFlag{Name: "log", Value: "", Usage: "log level: debug, info, warn, error"},
		cli.BoolFlag{Name: "quiet", Usage: "suppress non-error log output"},
		cli.BoolFlag{Name: "QPP", Usage: "enable Quantum Permutation Pads on the admin tunnel"},
		cli.IntFlag{Name: "QPPCount", Value: 61, Usage: "prime count of QPP pads"},
		cli.BoolFlag{Name: "proxy-protocol-v2", Usage: "strip a PROXY protocol v2 header from each inbound datagram"},
		cli.BoolFlag{Name: "use-conv-channel", Usage: "enable the engine's ChannelManager session lookup path"},
		cli.BoolFlag{Name: "crc32-check", Usage: "validate and strip a leading CRC32 from each datagram"},
		cli.BoolFlag{Name: "fec-adapt", Usage: "account for FEC framing when computing the KCP SN offset"},
		cli.StringFlag{Name: "header-variant", Value: "base", Usage: "base (28-byte) or hoyo (32-byte) wire header"},
		cli.IntFlag{Name: "waiter-cap", Value: 0, Usage: "pending-handshake FIFO capacity, 0 for default"},
		cli.IntFlag{Name: "executor-queue-depth", Value: 0, Usage: "per-session executor queue depth, 0 for default"},
		cli.StringFlag{Name: "admin-listen", Value: "", Usage: "admin/diagnostics tunnel listen address, empty to disable"},
		cli.StringFlag{Name: "c", Value: "", Usage: "config from json file, overrides the flags above"},
	}
}

// FromContext builds a Config from cli flag values, then applies a JSON
// override file if "-c" was given, matching the teacher's precedence order.
func FromContext(c *cli.Context) (Config, error) {
	cfg := Config{
		Listen:             c.String("listen"),
		Key:                c.String("key"),
		Crypt:              c.String("crypt"),
		Mode:               c.String("mode"),
		MTU:                c.Int("mtu"),
		SndWnd:             c.Int("sndwnd"),
		RcvWnd:             c.Int("rcvwnd"),
		DataShard:          c.Int("datashard"),
		ParityShard:        c.Int("parityshard"),
		DSCP:               c.Int("dscp"),
		NoComp:             c.Bool("nocomp"),
		AckNodelay:         c.Bool("acknodelay"),
		NoDelay:            c.Int("nodelay"),
		Interval:           c.Int("interval"),
		Resend:             c.Int("resend"),
		SockBuf:            c.Int("sockbuf"),
		SmuxVer:            c.Int("smuxver"),
		SmuxBuf:            c.Int("smuxbuf"),
		StreamBuf:          c.Int("streambuf"),
		KeepAlive:          c.Int("keepalive"),
		Log:                c.String("log"),
		Quiet:              c.Bool("quiet"),
		QPP:                c.Bool("QPP"),
		QPPCount:           c.Int("QPPCount"),
		ProxyProtocolV2:    c.Bool("proxy-protocol-v2"),
		UseConvChannel:     c.Bool("use-conv-channel"),
		CRC32Check:         c.Bool("crc32-check"),
		FECAdapt:           c.Bool("fec-adapt"),
		HeaderVariant:      c.String("header-variant"),
		WaiterCap:          c.Int("waiter-cap"),
		ExecutorQueueDepth: c.Int("executor-queue-depth"),
		AdminListen:        c.String("admin-listen"),
	}

	if path := c.String("c"); path != "" {
		if err := ParseJSON(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}
