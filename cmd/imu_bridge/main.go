// Command imu_bridge shares a locally attached WT901 with a rotator_bridge
// on another host by relaying Modbus RTU frames over HTTP.
package main

import (
	"crypto/subtle"
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/gorilla/mux"

	"github.com/w1xm/rotator_bridge/internal/modbus/modbushttp"
	"github.com/w1xm/rotator_bridge/wt901"
)

var (
	addr     = flag.String("addr", "127.0.0.1:8503", "address to listen on")
	password = flag.String("password", "", "password to require on remote connections")
	imuPort  = flag.String("imu", "/dev/ttyUSB0", "WT901 serial port name")
	imuBaud  = flag.Int("imu_baud", 9600, "WT901 baud rate")
)

type sender interface {
	Send(aduRequest []byte) ([]byte, error)
}

type Server struct {
	mu       sync.Mutex
	handler  sender
	password string
}

func NewServer(port string, baud int, password string) *Server {
	handler := modbus.NewRTUClientHandler(port)
	handler.BaudRate = baud
	handler.DataBits = 8
	handler.Parity = "N"
	handler.StopBits = 1
	handler.Timeout = 1 * time.Second
	handler.SlaveId = wt901.DefaultAddress
	return &Server{
		handler:  handler,
		password: password,
	}
}

func (s *Server) SendHandler(w http.ResponseWriter, r *http.Request) {
	if s.password != "" {
		_, pass, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(pass), []byte(s.password)) != 1 {
			http.Error(w, "wrong password", http.StatusUnauthorized)
			return
		}
	}
	err := func() error {
		aduRequest, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		s.mu.Lock()
		aduResponse, err := s.handler.Send(aduRequest)
		s.mu.Unlock()
		var errString string
		if err != nil {
			errString = err.Error()
		}
		body, err := json.Marshal(&modbushttp.SendResponse{
			ADUResponse: aduResponse,
			Error:       errString,
		})
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", "application/json")
		_, err = w.Write(body)
		return err
	}()
	if err != nil {
		log.Printf("SendHandler: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/api/send", http.HandlerFunc(s.SendHandler)).Methods(http.MethodPost)
	return r
}

func main() {
	flag.Parse()
	server := NewServer(*imuPort, *imuBaud, *password)
	srv := &http.Server{
		Handler:      server.Router(),
		Addr:         *addr,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	log.Printf("Listening on %v", srv.Addr)
	log.Fatal(srv.ListenAndServe())
}
