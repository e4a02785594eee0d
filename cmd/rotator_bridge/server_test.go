package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"github.com/w1xm/rotator_bridge/actuator"
	"github.com/w1xm/rotator_bridge/gimbal"
	"github.com/w1xm/rotator_bridge/rotator"
	"github.com/w1xm/rotator_bridge/telemetry"
)

func newTestServer(t *testing.T) (*Server, *gimbal.Gimbal, *httptest.Server) {
	t.Helper()
	cfg := gimbal.DefaultConfig()
	cfg.Simulate = true
	var srv *Server
	g, err := gimbal.New(cfg, nil, actuator.Null{}, gimbal.WithStatusCallback(func(s rotator.Status) {
		srv.statusCallback(s)
	}))
	if err != nil {
		t.Fatal(err)
	}
	srv = NewServer(g, g)
	ts := httptest.NewServer(srv.Router(http.NotFoundHandler()))
	t.Cleanup(ts.Close)
	return srv, g, ts
}

func TestStatusHandler(t *testing.T) {
	srv, _, ts := newTestServer(t)
	power, freq, ratio := -31.2, 100.2e6, 0.52
	srv.statusCallback(rotator.Status{AzPos: 12.5, ElPos: 40, CommandAzPos: 15, SensorOkay: true})
	srv.telemetryCallback(telemetry.Record{Timestamp: 1700000000, PeakPowerDB: &power, PeakFreqHz: &freq, SignalStrengthRatio: &ratio})

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	var got map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	for key, want := range map[string]interface{}{
		"az_pos":         12.5,
		"el_pos":         40.0,
		"command_az_pos": 15.0,
		"sensor_okay":    true,
		"signal":         "SIG=-31.2dB @100.20 MHz R=0.52",
	} {
		if diff := cmp.Diff(want, got[key]); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", key, diff)
		}
	}
	if _, ok := got["telemetry"].(map[string]interface{}); !ok {
		t.Errorf("telemetry = %v, want object", got["telemetry"])
	}
}

func TestStatusHandlerRejectsPost(t *testing.T) {
	_, _, ts := newTestServer(t)
	resp, err := http.Post(ts.URL+"/api/status", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/status = %d, want 405", resp.StatusCode)
	}
}

func TestStatusSocket(t *testing.T) {
	srv, g, ts := newTestServer(t)
	srv.statusCallback(rotator.Status{Time: time.Unix(1, 0), AzPos: 3})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first StatusMessage
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if first.AzPos != 3 {
		t.Errorf("first status az_pos = %v, want 3", first.AzPos)
	}

	if err := conn.WriteJSON(Command{Command: "set_position", Azimuth: 30, Elevation: 20}); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(Command{Command: "bogus"}); err != nil {
		t.Fatal(err)
	}
	var result Result
	if err := conn.ReadJSON(&result); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Result{Command: "bogus", Error: errUnknownCommand.Error()}, result); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if az, el := g.Target(); az != 30 || el != 20 {
		t.Errorf("Target() = (%v, %v), want (30, 20)", az, el)
	}
}
