package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/w1xm/rotator_bridge/rotator"
	"github.com/w1xm/rotator_bridge/telemetry"
)

var errUnknownCommand = errors.New("unknown command")

// statusPeriod caps how often a websocket client is sent status.
const statusPeriod = 100 * time.Millisecond

type Server struct {
	mu  sync.Mutex
	r   rotator.Rotator
	cal rotator.Calibrator

	statusMu  sync.RWMutex
	status    rotator.Status
	telemetry *telemetry.Record
}

func NewServer(r rotator.Rotator, cal rotator.Calibrator) *Server {
	return &Server{r: r, cal: cal}
}

// StatusMessage is the JSON body of /api/status and each websocket frame.
type StatusMessage struct {
	rotator.Status
	Telemetry *telemetry.Record `json:"telemetry,omitempty"`
	Signal    string            `json:"signal,omitempty"`
}

func (s *Server) snapshot() StatusMessage {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	msg := StatusMessage{Status: s.status, Telemetry: s.telemetry}
	if s.telemetry != nil {
		msg.Signal = s.telemetry.Summary()
	}
	return msg
}

func (s *Server) Router(metrics http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.StatusHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/ws", s.StatusSocketHandler)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	return r
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	data, err := json.Marshal(s.snapshot())
	if err != nil {
		log.Print(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

type Command struct {
	Command   string  `json:"command"`
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
}

// Result is sent back for commands that fail.
type Result struct {
	Command string `json:"command"`
	Error   string `json:"error"`
}

func (s *Server) execute(msg Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch msg.Command {
	case "set_position":
		return s.r.SetTarget(msg.Azimuth, msg.Elevation)
	case "stop":
		s.r.Stop()
	case "calibrate":
		if s.cal != nil {
			return s.cal.Calibrate()
		}
	case "set_offset":
		if s.cal != nil {
			s.cal.SetOffset(msg.Azimuth, msg.Elevation)
		}
	default:
		return errUnknownCommand
	}
	return nil
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	// Read and process incoming messages
	go func() {
		defer cancel()
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if err := s.execute(msg); err != nil {
				if err := send(Result{Command: msg.Command, Error: err.Error()}); err != nil {
					return
				}
			}
		}
	}()

	t := time.NewTicker(statusPeriod)
	defer t.Stop()
	var last time.Time
	for {
		msg := s.snapshot()
		if !msg.Time.Equal(last) {
			last = msg.Time
			if err := send(msg); err != nil {
				log.Print(err)
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (s *Server) statusCallback(status rotator.Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status = status
}

func (s *Server) telemetryCallback(rec telemetry.Record) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.telemetry = &rec
}
