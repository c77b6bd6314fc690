package dictrd

import (
	"bufio"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	mrand "math/rand"
	"net"
	"os"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultAddr is the IANA-registered dictd port, bound on loopback by
// default (spec §4.G / §6).
const DefaultAddr = "127.0.0.1:2628"

// Server accepts TCP connections and runs one independent Session per
// connection against a shared, read-only Registry.
type Server struct {
	Addr       string
	Registry   *Registry
	Dispatcher *Dispatcher
	Logger     *zerolog.Logger
}

// NewServer returns a Server listening on addr (DefaultAddr if empty)
// and dispatching against reg. logger may be nil.
func NewServer(addr string, reg *Registry, logger *zerolog.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{
		Addr:       addr,
		Registry:   reg,
		Dispatcher: NewDispatcher(reg, logger),
		Logger:     logger,
	}
}

// ListenAndServe binds Addr and serves connections until ctx is
// canceled. It returns an error only if binding fails. Each accepted
// connection runs its own Session independently; a fault on one
// connection never affects another.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.Addr)
	if err != nil {
		return wrapIO("listen", err)
	}
	defer ln.Close()

	return s.Serve(ctx, ln)
}

// Serve accepts connections from an already-bound listener until ctx
// is canceled, then returns nil. Any other Accept error is logged and
// accepting continues. Splitting this out from ListenAndServe lets
// tests bind an ephemeral port and learn its address before serving.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	if s.Logger != nil {
		s.Logger.Info().Str("addr", ln.Addr().String()).Msg("dictrd listening")
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if s.Logger != nil {
				s.Logger.Error().Err(err).Msg("accept failed")
			}
			continue
		}
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	sess := &Session{
		rw:         bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
		dispatcher: s.Dispatcher,
		logger:     s.Logger,
		rng:        newSessionRand(),
		peer:       conn.RemoteAddr().String(),
	}
	if err := sess.run(); err != nil {
		if s.Logger != nil {
			s.Logger.Error().Err(err).Str("peer", sess.peer).Msg("session ended")
		}
	}
}

// newSessionRand returns a PRNG seeded from a cryptographically random
// source, private to one session, so XRANDOM draws across sessions
// never contend on shared state (spec §5, §9).
func newSessionRand() *mrand.Rand {
	var seed int64
	if n, err := rand.Int(rand.Reader, big.NewInt(1<<62)); err == nil {
		seed = n.Int64()
	}
	return mrand.New(mrand.NewSource(seed))
}

// Session is the per-connection transient state: a buffered
// reader/writer, no other mutable protocol state. It terminates on
// QUIT or EOF.
type Session struct {
	rw         *bufio.ReadWriter
	dispatcher *Dispatcher
	logger     *zerolog.Logger
	rng        *mrand.Rand
	peer       string
}

// banner returns the 220 greeting line (spec §4.G, §6).
func banner() (string, error) {
	host, err := os.Hostname()
	if err != nil {
		return "", wrapIO("hostname", err)
	}
	return fmt.Sprintf("220 %s dictrd %s %s\n", host, runtime.GOOS, runtime.Version()), nil
}

// run drives the session's Greeted -> dispatch -> Closed state
// machine (spec §4.G) until QUIT, EOF, or a fatal I/O error.
func (sess *Session) run() error {
	line, err := banner()
	if err != nil {
		return err
	}
	if _, err := sess.rw.WriteString(line); err != nil {
		return wrapIO("write banner", err)
	}
	if err := sess.rw.Flush(); err != nil {
		return wrapIO("flush banner", err)
	}

	for {
		raw, err := sess.rw.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return wrapIO("read", err)
		}
		query := strings.TrimRight(raw, "\r\n")
		if query == "" {
			continue
		}

		if sess.logger != nil {
			sess.logger.Info().Str("peer", sess.peer).Str("query", query).Msg("received query")
		}

		cmd, err := ParseCommand(query)
		if err != nil {
			if werr := DispatchSyntaxError(sess.rw.Writer); werr != nil {
				return werr
			}
			if err := sess.rw.Flush(); err != nil {
				return wrapIO("flush", err)
			}
			continue
		}

		terminate, err := sess.dispatcher.Dispatch(sess.rw.Writer, cmd, sess.rng)
		if err != nil {
			var ioErr *IoError
			if errors.As(err, &ioErr) {
				return err
			}
			return wrapIO("dispatch", err)
		}
		if err := sess.rw.Flush(); err != nil {
			return wrapIO("flush", err)
		}
		if terminate {
			return nil
		}
	}
}
