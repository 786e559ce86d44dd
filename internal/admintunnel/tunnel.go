// Package admintunnel is the operator-facing ops channel SPEC_FULL.md's
// Domain Stack section describes: a second, independently-keyed KCP+smux
// listener exposing live diagnostics (session counts, waiter occupancy,
// forced disconnects) against the core's conversation registry. It adapts
// the teacher's server/main.go handleMux/handleClient pair and its std/
// helpers (crypt, comp, smux config, QPP, multi-port listen, SNMP logging)
// from "blindly forward bytes to an upstream target" to "terminate a
// small request/response command protocol locally".
package admintunnel

import (
	"crypto/sha1"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	kcp "github.com/xtaci/kcp-go/v5"
	"github.com/xtaci/qpp"
	"github.com/xtaci/smux"
	"golang.org/x/crypto/pbkdf2"

	"github.com/xtaci/kcpcore/internal/convreg"
	"github.com/xtaci/kcpcore/internal/engine"
	"github.com/xtaci/kcpcore/internal/logging"
	"github.com/xtaci/kcpcore/internal/waiter"
)

// salt is the PBKDF2 salt for deriving the admin channel's cipher key,
// unchanged from the teacher's own "kcp-go" constant.
const salt = "kcp-go"

var log = logging.Component("admintunnel")

// Params configures a Tunnel. A zero Concurrency defaults to 64; every other
// field is used as given, so the KCP/smux fields need valid values.
type Params struct {
	Listen string // host:port or host:minPort-maxPort
	Key    string
	Crypt  string

	DataShard   int
	ParityShard int

	SmuxVer          int
	SmuxBuf          int
	StreamBuf        int
	FrameSize        int
	KeepAliveSeconds int

	NoComp bool

	QPP      bool
	QPPCount int

	// Concurrency bounds how many admin stream handlers run at once.
	Concurrency int

	SNMPLogPath     string
	SNMPLogInterval time.Duration
}

// Tunnel is the admin/diagnostics listener.
type Tunnel struct {
	params    Params
	registry  *convreg.Registry
	waiters   *waiter.Table
	pool      *ants.Pool
	listeners []*kcp.Listener
	stop      chan struct{}
}

// New builds a Tunnel bound to registry and waiters. waiters may be nil if
// the embedder doesn't want waiter occupancy exposed. Call Serve to start
// accepting.
func New(params Params, registry *convreg.Registry, waiters *waiter.Table) (*Tunnel, error) {
	if params.Concurrency <= 0 {
		params.Concurrency = 64
	}
	pool, err := ants.NewPool(params.Concurrency)
	if err != nil {
		return nil, errors.Wrap(err, "admintunnel: building ants pool")
	}
	return &Tunnel{
		params:   params,
		registry: registry,
		waiters:  waiters,
		pool:     pool,
		stop:     make(chan struct{}),
	}, nil
}

// Serve binds every port in params.Listen's range and accepts admin
// sessions until Close is called. After a successful bind it returns only
// once Close has been invoked; a listener whose accept loop fails stops
// serving its own port without ending Serve.
func (t *Tunnel) Serve() error {
	if t.params.QPP && t.params.QPPCount <= 0 {
		return errors.New("admintunnel: qpp count must be > 0 when qpp is enabled")
	}
	if t.params.QPP {
		warnings, err := validateQPPParams(t.params.QPPCount, t.params.Key)
		if err != nil {
			return errors.Wrap(err, "admintunnel: validating qpp params")
		}
		for _, w := range warnings {
			log.Warn(w)
		}
	}

	go runSNMPLogger(t.stop, t.params.SNMPLogPath, t.params.SNMPLogInterval)

	pass := pbkdf2.Key([]byte(t.params.Key), []byte(salt), 4096, 32, sha1.New)
	block, effectiveCrypt := selectBlockCrypt(t.params.Crypt, pass)
	log.WithField("cipher", effectiveCrypt).Info("admin tunnel cipher selected")

	mp, err := parseMultiPort(t.params.Listen)
	if err != nil {
		return err
	}

	var pad *qpp.QuantumPermutationPad
	if t.params.QPP {
		pad = qpp.NewQPP([]byte(t.params.Key), uint16(t.params.QPPCount))
	}

	for port := mp.MinPort; port <= mp.MaxPort; port++ {
		addr := fmt.Sprintf("%s:%d", mp.Host, port)
		lis, err := kcp.ListenWithOptions(addr, block, t.params.DataShard, t.params.ParityShard)
		if err != nil {
			return errors.Wrapf(err, "admintunnel: listening on %s", addr)
		}
		t.listeners = append(t.listeners, lis)
		log.WithField("addr", addr).Info("admin tunnel listening")
		go t.acceptLoop(lis, pad)
	}

	<-t.stop
	return nil
}

// Close stops accepting new admin sessions and releases the stream pool.
func (t *Tunnel) Close() {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	for _, lis := range t.listeners {
		lis.Close()
	}
	t.pool.Release()
}

func (t *Tunnel) acceptLoop(lis *kcp.Listener, pad *qpp.QuantumPermutationPad) {
	for {
		conn, err := lis.AcceptKCP()
		if err != nil {
			select {
			case <-t.stop:
				return
			default:
			}
			log.WithError(err).Warn("admin tunnel accept failed")
			return
		}
		conn.SetStreamMode(true)
		conn.SetWriteDelay(false)

		var stream net.Conn = conn
		if !t.params.NoComp {
			stream = newCompStream(conn)
		}
		go t.handleSession(stream, pad)
	}
}

func (t *Tunnel) handleSession(conn net.Conn, pad *qpp.QuantumPermutationPad) {
	smuxConfig, err := buildSmuxConfig(SmuxParams{
		Version:          t.params.SmuxVer,
		MaxReceiveBuffer: t.params.SmuxBuf,
		MaxStreamBuffer:  t.params.StreamBuf,
		MaxFrameSize:     t.params.FrameSize,
		KeepAliveSeconds: t.params.KeepAliveSeconds,
	})
	if err != nil {
		log.WithError(err).Error("admin tunnel smux config invalid")
		conn.Close()
		return
	}

	mux, err := smux.Server(conn, smuxConfig)
	if err != nil {
		log.WithError(err).Error("admin tunnel smux handshake failed")
		conn.Close()
		return
	}
	defer mux.Close()

	for {
		stream, err := mux.AcceptStream()
		if err != nil {
			return
		}
		streamID := uuid.NewString()
		submitErr := t.pool.Submit(func() { t.handleStream(stream, pad, streamID) })
		if submitErr != nil {
			log.WithError(submitErr).WithField("stream", streamID).Warn("admin tunnel rejected stream, pool saturated")
			stream.Close()
		}
	}
}

// streamRWC is the minimal io.ReadWriter a stream handler needs,
// satisfied by both a bare *smux.Stream and a qppPort wrapping one.
type streamRWC interface {
	io.Reader
	io.Writer
}

func (t *Tunnel) handleStream(stream *smux.Stream, pad *qpp.QuantumPermutationPad, streamID string) {
	defer stream.Close()

	var rwc streamRWC = stream
	if pad != nil {
		rwc = newQPPPort(stream, pad, []byte(t.params.Key))
	}

	req, err := readRequest(rwc)
	if err != nil {
		log.WithError(err).WithField("stream", streamID).Warn("admin tunnel malformed request")
		return
	}

	resp := t.execute(req)
	if err := writeResponse(rwc, resp); err != nil {
		log.WithError(err).WithField("stream", streamID).Warn("admin tunnel failed to write response")
	}
}

func (t *Tunnel) execute(req Request) Response {
	switch req.Command {
	case CommandStats:
		stats := &StatsSnapshot{SessionCount: t.registry.Count()}
		if t.waiters != nil {
			stats.WaiterCount = t.waiters.Len()
		}
		return Response{OK: true, Stats: stats}

	case CommandWaiterLen:
		if t.waiters == nil {
			return Response{OK: false, Error: "waiter table not wired"}
		}
		return Response{OK: true, WaiterSize: t.waiters.Len()}

	case CommandList:
		entries := t.registry.Snapshot()
		sessions := make([]SessionSnapshot, 0, len(entries))
		for _, e := range entries {
			sessions = append(sessions, SessionSnapshot{ConvID: e.ConvID, Origin: e.Origin.String()})
		}
		return Response{OK: true, Sessions: sessions}

	case CommandKick:
		s := t.registry.GetByConv(req.ConvID)
		if s == nil {
			return Response{OK: false, Error: "no such conversation"}
		}
		if sess, ok := s.(engine.Session); ok {
			sess.Close(true)
		}
		return Response{OK: true}

	default:
		return Response{OK: false, Error: "unknown command: " + req.Command}
	}
}
