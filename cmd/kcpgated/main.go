// Command kcpgated runs the ingress dispatcher (internal/dispatch) against
// a real UDP socket, plus the optional admin/diagnostics tunnel
// (internal/admintunnel), mirroring the teacher's server/main.go's
// urfave/cli app shape but wired to this protocol's session core instead
// of a KCP+smux TCP-tunneling proxy.
package main

import (
	"context"
	"net"
	"os"

	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"github.com/xtaci/kcpcore/internal/admintunnel"
	"github.com/xtaci/kcpcore/internal/buffer"
	"github.com/xtaci/kcpcore/internal/config"
	"github.com/xtaci/kcpcore/internal/dispatch"
	"github.com/xtaci/kcpcore/internal/endpoint"
	"github.com/xtaci/kcpcore/internal/engine"
	"github.com/xtaci/kcpcore/internal/engine/refsession"
	"github.com/xtaci/kcpcore/internal/executor"
	"github.com/xtaci/kcpcore/internal/logging"
	"github.com/xtaci/kcpcore/internal/timingwheel"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

// maxDatagramSize bounds a single read off the UDP socket; KCP/FEC/PROXY
// framing all comfortably fit well under the classic 64KiB UDP ceiling.
const maxDatagramSize = 65536

func main() {
	app := cli.NewApp()
	app.Name = "kcpgated"
	app.Usage = "reliable-datagram session gateway"
	app.Version = VERSION
	app.Flags = config.Flags()
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		logging.Log.WithError(err).Fatal("kcpgated exited with error")
	}
}

func run(c *cli.Context) error {
	cfg, err := config.FromContext(c)
	if err != nil {
		return err
	}
	logging.Configure(cfg.Log, cfg.Quiet)
	log := logging.Component("main")
	log.WithField("listen", cfg.Listen).Info("starting kcpgated")

	udpConn, err := net.ListenPacket("udp", cfg.Listen)
	if err != nil {
		return err
	}
	defer udpConn.Close()

	pool := buffer.NewPool(maxDatagramSize)
	out := &udpOutput{conn: udpConn}
	execPool := executor.NewPool(cfg.ExecutorQueueDepth)
	wheel := timingwheel.New()
	defer wheel.Close()

	engineConfig := engine.Config{
		ProxyProtocolV2Enabled: cfg.ProxyProtocolV2,
		UseConvChannel:         cfg.UseConvChannel,
		CRC32Check:             cfg.CRC32Check,
		FECAdapt:               cfg.FECAdapt,
		HeaderVariant:          headerVariant(cfg.HeaderVariant),
	}

	listener := &loggingListener{log: logging.Component("session")}
	d := dispatch.New(engineConfig, cfg.WaiterCap, execPool, wheel, refsession.New, listener, out)

	group, ctx := errgroup.WithContext(context.Background())

	group.Go(func() error {
		return readLoop(ctx, udpConn, pool, d)
	})

	var tunnel *admintunnel.Tunnel
	if cfg.AdminListen != "" {
		tunnel, err = admintunnel.New(admintunnel.Params{
			Listen:           cfg.AdminListen,
			Key:              cfg.Key,
			Crypt:            cfg.Crypt,
			DataShard:        cfg.DataShard,
			ParityShard:      cfg.ParityShard,
			SmuxVer:          cfg.SmuxVer,
			SmuxBuf:          cfg.SmuxBuf,
			StreamBuf:        cfg.StreamBuf,
			FrameSize:        8192,
			KeepAliveSeconds: cfg.KeepAlive,
			NoComp:           cfg.NoComp,
			QPP:              cfg.QPP,
			QPPCount:         cfg.QPPCount,
		}, d.Registry(), d.Waiters())
		if err != nil {
			return err
		}
		group.Go(tunnel.Serve)
	}

	err = group.Wait()
	if tunnel != nil {
		tunnel.Close()
	}
	if execShutdownErr := execPool.Shutdown(); execShutdownErr != nil && err == nil {
		err = execShutdownErr
	}
	return err
}

func headerVariant(name string) engine.HeaderVariant {
	if name == "hoyo" {
		return engine.HeaderHoyo
	}
	return engine.HeaderBase
}

// readLoop pulls datagrams off conn until ctx is cancelled or a read fails,
// handing each one to the dispatcher. One goroutine owns conn's read path,
// matching internal/dispatch's single-threaded-per-socket design.
func readLoop(ctx context.Context, conn net.PacketConn, pool *buffer.Pool, d *dispatch.Dispatcher) error {
	local := localEndpoint(conn)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		buf := pool.Get(maxDatagramSize)
		n, addr, err := conn.ReadFrom(buf.Bytes())
		if err != nil {
			buf.Release()
			return err
		}
		buf.Narrow(0, n)

		sender, ok := endpointFromAddr(addr)
		if !ok {
			buf.Release()
			continue
		}
		d.Dispatch(buf, sender, local)
	}
}

func localEndpoint(conn net.PacketConn) endpoint.Endpoint {
	if udpAddr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return endpoint.FromUDPAddr(udpAddr)
	}
	return endpoint.Endpoint{}
}

func endpointFromAddr(addr net.Addr) (endpoint.Endpoint, bool) {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return endpoint.Endpoint{}, false
	}
	return endpoint.FromUDPAddr(udpAddr), true
}

// udpOutput implements engine.Output over a live UDP socket.
type udpOutput struct {
	conn net.PacketConn
}

func (o *udpOutput) WriteTo(data []byte, to endpoint.Endpoint) (int, error) {
	return o.conn.WriteTo(data, to.UDPAddr())
}

// loggingListener is the default engine.Listener: it forwards nothing
// anywhere (the real application payload consumer is out of scope per
// spec.md §1) but logs lifecycle events at debug level so the gateway is
// observable out of the box.
type loggingListener struct {
	log *logging.Entry
}

func (l *loggingListener) OnConnected(s engine.Session) {
	l.log.WithField("convId", s.ConvID()).Debug("session connected")
}

func (l *loggingListener) HandleReceive(s engine.Session, data []byte) {
	l.log.WithField("convId", s.ConvID()).WithField("bytes", len(data)).Debug("session data received")
}

func (l *loggingListener) HandleException(s engine.Session, err error) {
	l.log.WithField("convId", s.ConvID()).WithError(err).Warn("session error")
}

func (l *loggingListener) HandleClose(s engine.Session) {
	l.log.WithField("convId", s.ConvID()).Debug("session closed")
}
