// Package rotctld serves the hamlib rotctld network protocol on top of a
// rotator.Rotator.
package rotctld

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"

	"github.com/w1xm/rotator_bridge/rotator"
)

const DefaultPort = 4533

// Caps describes the rotator in dump_caps replies.
type Caps struct {
	MinAz, MaxAz float64
	MinEl, MaxEl float64
}

// Recorder receives per-command and per-session counts.
type Recorder interface {
	ObserveCommand(cmd string, rprt int)
	ObserveSession(delta int)
}

type Option func(s *Server)

func WithCaps(c Caps) Option {
	return func(s *Server) {
		s.caps = c
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Server) {
		s.recorder = r
	}
}

type Server struct {
	r        rotator.Rotator
	caps     Caps
	recorder Recorder

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func New(r rotator.Rotator, options ...Option) *Server {
	s := &Server{
		r:     r,
		caps:  Caps{MinAz: -180, MaxAz: 180, MinEl: 0, MaxEl: 90},
		conns: make(map[net.Conn]struct{}),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Listen binds addr and serves it in the background until ctx is canceled.
// A bind failure is returned immediately.
func (s *Server) Listen(ctx context.Context, addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rotctld listen on %q: %w", addr, err)
	}
	log.Printf("rotctld listening on %v", ln.Addr())
	go s.Serve(ctx, ln)
	return ln.Addr(), nil
}

// Serve accepts connections on ln until ctx is canceled. Each connection is
// handled on its own goroutine.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		log.Print("shutdown; closing rotctld socket")
		ln.Close()
		s.closeAll()
	}()
	for ctx.Err() == nil {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			log.Printf("failed to accept: %v", err)
			continue
		}
		s.track(conn, true)
		if ctx.Err() != nil {
			// Accepted while shutting down; closeAll may already have run.
			s.track(conn, false)
			conn.Close()
			break
		}
		go func() {
			defer s.track(conn, false)
			s.ServeConn(conn)
		}()
	}
	return ctx.Err()
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

type remoteAddresser interface {
	RemoteAddr() net.Addr
}

// ServeConn runs one session until the peer closes the stream or sends Q.
func (s *Server) ServeConn(conn io.ReadWriteCloser) {
	defer conn.Close()
	peer := "session"
	if ra, ok := conn.(remoteAddresser); ok {
		peer = ra.RemoteAddr().String()
	}
	log.Printf("accepted connection from %v", peer)
	if s.recorder != nil {
		s.recorder.ObserveSession(1)
		defer s.recorder.ObserveSession(-1)
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		cmd, ok := Parse(scanner.Text())
		if !ok {
			continue
		}
		log.Printf("%v command: %q args: %#v", peer, cmd.Name, cmd.Args)
		rprt, err := s.dispatch(conn, cmd)
		if s.recorder != nil {
			s.recorder.ObserveCommand(cmd.Kind.String(), rprt)
		}
		if err != nil {
			log.Printf("writing to %v: %v", peer, err)
			return
		}
		if cmd.Kind == Quit {
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Printf("reading from %v: %v", peer, err)
	}
}

// dispatch executes cmd and writes its reply. It returns the RPRT code
// (RigOK for replies that carry data instead) and any write error.
func (s *Server) dispatch(w io.Writer, cmd Command) (int, error) {
	rprt := RigOK
	switch cmd.Kind {
	case SetPosition:
		if cmd.Err != nil {
			rprt = RigEInval
			break
		}
		if err := s.r.SetTarget(cmd.Az, cmd.El); err != nil {
			rprt = RigEInval
		}
	case GetPosition:
		az, el := s.r.Position()
		_, err := fmt.Fprintf(w, "Azimuth: %.3f\nElevation: %.3f\n", az, el)
		return rprt, err
	case Stop:
		s.r.Stop()
	case Quit:
	case DumpCaps:
		if _, err := fmt.Fprintf(w, `Model name: Rotator Bridge
Mfg name: w1xm
Rot type: Az-El
Min Azimuth: %.2f
Max Azimuth: %.2f
Min Elevation: %.2f
Max Elevation: %.2f
Can set Position: Y
Can get Position: Y
Can Stop: Y
Can Park: N
Can Reset: N
Can Move: N
Can get Info: N
`, s.caps.MinAz, s.caps.MaxAz, s.caps.MinEl, s.caps.MaxEl); err != nil {
			return rprt, err
		}
	default:
		rprt = RigENImpl
	}
	_, err := fmt.Fprintf(w, "RPRT %d\n", rprt)
	return rprt, err
}
