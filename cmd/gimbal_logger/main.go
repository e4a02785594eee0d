// Command gimbal_logger records the rotator_bridge status stream to InfluxDB
// or a local sqlite database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
)

var (
	statusURL = flag.String("status_url", "", "rotator_bridge websocket (default $BRIDGE_ADDRESS or ws://localhost:8502/api/ws)")
	sinkKind  = flag.String("sink", "influx", "where to record: influx or sqlite")
	dbPath    = flag.String("db", "gimbal.db", "sqlite database path")
	org       = flag.String("influx_org", "w1xm", "InfluxDB organization")
	bucket    = flag.String("influx_bucket", "gimbal.raw", "InfluxDB bucket")
)

// Sink stores one flattened status sample.
type Sink interface {
	Write(t time.Time, fields map[string]interface{}) error
	Close() error
}

type influxSink struct {
	client   influxdb2.Client
	writeApi api.WriteApi
}

func newInfluxSink() *influxSink {
	server := os.Getenv("INFLUX_SERVER")
	if server == "" {
		server = "http://localhost:9999"
	}
	client := influxdb2.NewClient(server, os.Getenv("INFLUX_TOKEN"))
	// Get non-blocking write client
	writeApi := client.WriteApi(*org, *bucket)
	go func() {
		for err := range writeApi.Errors() {
			log.Printf("write error: %v", err)
		}
	}()
	return &influxSink{client: client, writeApi: writeApi}
}

func (s *influxSink) Write(t time.Time, fields map[string]interface{}) error {
	// write asynchronously
	s.writeApi.WritePoint(influxdb2.NewPoint("gimbal.status", nil, fields, t))
	return nil
}

func (s *influxSink) Close() error {
	s.writeApi.Close()
	s.client.Close()
	return nil
}

func openSink() (Sink, error) {
	switch *sinkKind {
	case "influx":
		return newInfluxSink(), nil
	case "sqlite":
		return openSqliteSink(*dbPath)
	}
	return nil, fmt.Errorf("unknown sink %q", *sinkKind)
}

func main() {
	flag.Parse()
	url := *statusURL
	if url == "" {
		url = os.Getenv("BRIDGE_ADDRESS")
	}
	if url == "" {
		url = "ws://localhost:8502/api/ws"
	}
	sink, err := openSink()
	if err != nil {
		log.Fatal(err)
	}
	defer sink.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	for ctx.Err() == nil {
		if err := logData(ctx, url, sink); err != nil && ctx.Err() == nil {
			log.Print(err)
		}
		select {
		case <-ctx.Done():
		case <-time.After(1 * time.Second):
		}
	}
}

func flattenStatus(fields map[string]interface{}, status interface{}, prefix string) {
	switch status := status.(type) {
	case map[string]interface{}:
		for k, v := range status {
			flattenStatus(fields, v, prefix+"."+k)
		}
	case []interface{}:
		for k, v := range status {
			flattenStatus(fields, v, fmt.Sprintf("%s.%d", prefix, k))
		}
	case nil:
	default:
		fields[prefix[1:]] = status
	}
}

func logData(ctx context.Context, url string, sink Sink) error {
	var dialer websocket.Dialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	log.Printf("recording %v", url)
	for {
		var status interface{}
		if err := conn.ReadJSON(&status); err != nil {
			return err
		}
		fields := make(map[string]interface{})
		flattenStatus(fields, status, "")
		if len(fields) == 0 {
			continue
		}
		if err := sink.Write(time.Now(), fields); err != nil {
			return err
		}
	}
}
