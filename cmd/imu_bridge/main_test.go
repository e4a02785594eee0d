package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/w1xm/rotator_bridge/internal/modbus/modbushttp"
)

type fakeSender struct {
	requests [][]byte
	resp     []byte
	err      error
}

func (f *fakeSender) Send(aduRequest []byte) ([]byte, error) {
	f.requests = append(f.requests, aduRequest)
	return f.resp, f.err
}

func TestRelay(t *testing.T) {
	tests := []struct {
		name      string
		password  string
		clientPw  string
		sendErr   error
		wantErr   string
		wantRelay bool
	}{
		{name: "open", wantRelay: true},
		{name: "password", password: "hunter2", clientPw: "hunter2", wantRelay: true},
		{name: "wrong password", password: "hunter2", clientPw: "nope", wantErr: "bad status code"},
		{name: "device error", sendErr: errors.New("serial: timeout"), wantErr: "serial: timeout", wantRelay: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeSender{resp: []byte{0x50, 0x03, 0x02, 0x00, 0x01}, err: tt.sendErr}
			s := &Server{handler: fake, password: tt.password}
			ts := httptest.NewServer(s.Router())
			defer ts.Close()

			client := modbushttp.NewClient(ts.URL+"/api/send", 0x50)
			client.Password = tt.clientPw
			client.Timeout = 5 * time.Second
			req := []byte{0x50, 0x03, 0x00, 0x34, 0x00, 0x0d}
			got, err := client.Send(req)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("Send() error = %v, want %q", err, tt.wantErr)
				}
			} else {
				if err != nil {
					t.Fatalf("Send() error = %v", err)
				}
				if diff := cmp.Diff(fake.resp, got); diff != "" {
					t.Errorf("Send() mismatch (-want +got):\n%s", diff)
				}
			}
			if tt.wantRelay {
				if diff := cmp.Diff([][]byte{req}, fake.requests); diff != "" {
					t.Errorf("relayed requests mismatch (-want +got):\n%s", diff)
				}
			} else if len(fake.requests) != 0 {
				t.Errorf("unauthorized request was relayed: %v", fake.requests)
			}
		})
	}
}

func TestRelayRejectsGet(t *testing.T) {
	s := &Server{handler: &fakeSender{}}
	ts := httptest.NewServer(s.Router())
	defer ts.Close()
	resp, err := http.Get(ts.URL + "/api/send")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/send = %d, want 405", resp.StatusCode)
	}
}
