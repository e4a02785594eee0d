// Command rotator_bridge points an az/el gimbal on behalf of rotctld
// clients, closing the loop on a WT901 inclinometer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/w1xm/rotator_bridge/actuator"
	"github.com/w1xm/rotator_bridge/cmd/rotator_bridge/console"
	"github.com/w1xm/rotator_bridge/config"
	"github.com/w1xm/rotator_bridge/gimbal"
	"github.com/w1xm/rotator_bridge/internal/observability"
	"github.com/w1xm/rotator_bridge/rotator"
	"github.com/w1xm/rotator_bridge/rotctld"
	"github.com/w1xm/rotator_bridge/telemetry"
	"github.com/w1xm/rotator_bridge/wt901"
)

var (
	port          = flag.Int("port", rotctld.DefaultPort, "rotctld TCP port")
	sim           = flag.Bool("sim", false, "simulate the gimbal instead of driving hardware")
	interval      = flag.Duration("interval", 0, "telemetry poll interval (default from config, 500ms)")
	configPath    = flag.String("config", "", "YAML file with controller settings")
	httpAddr      = flag.String("http", "127.0.0.1:8502", "address for the status and metrics server; empty to disable")
	imuPort       = flag.String("imu", "/dev/ttyUSB0", "WT901 serial port name")
	imuBaud       = flag.Int("imu_baud", 9600, "WT901 baud rate")
	imuProtocol   = flag.String("imu_protocol", "modbus", "WT901 protocol: modbus or stream")
	imuURL        = flag.String("imu_url", "", "imu_bridge URL to use instead of a local port")
	imuPassword   = flag.String("imu_password", "", "imu_bridge password")
	actuatorKind  = flag.String("actuator", "gpio", "motor output: gpio or none")
	telemetryPath = flag.String("telemetry_path", "", "SDR telemetry file (default from config, "+telemetry.DefaultPath+")")
	useConsole    = flag.Bool("console", true, "read operator commands from stdin")
)

func main() {
	flag.Parse()
	if err := run(); err != nil && !errors.Is(err, console.ErrQuit) && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

func openIMU(ctx context.Context) (rotator.OrientationSource, error) {
	switch *imuProtocol {
	case "modbus":
		return wt901.ConnectModbus(ctx, wt901.ModbusConfig{
			Port:     *imuPort,
			BaudRate: *imuBaud,
			URL:      *imuURL,
			Password: *imuPassword,
		}, nil)
	case "stream":
		if *imuURL != "" {
			return nil, errors.New("-imu_url requires -imu_protocol=modbus")
		}
		return wt901.ConnectSerial(ctx, *imuPort, *imuBaud, nil)
	}
	return nil, fmt.Errorf("unknown IMU protocol %q", *imuProtocol)
}

type closingActuator interface {
	rotator.Actuator
	Close() error
}

func openActuator(cfg config.Config) (closingActuator, error) {
	switch *actuatorKind {
	case "gpio":
		return actuator.OpenHBridge(cfg.Pins)
	case "none":
		return nullActuator{}, nil
	}
	return nil, fmt.Errorf("unknown actuator %q", *actuatorKind)
}

type nullActuator struct{ actuator.Null }

func (nullActuator) Close() error { return nil }

type runner interface {
	Run(ctx context.Context) error
}

type listener interface {
	Listen(ctx context.Context, addr string) (net.Addr, error)
}

// startCore launches the control loop and then binds the rotctld listener,
// so the loop is ticking before the first client can connect.
func startCore(ctx context.Context, eg *errgroup.Group, loop runner, ln listener, addr string) error {
	started := make(chan struct{})
	eg.Go(func() error {
		close(started)
		return loop.Run(ctx)
	})
	<-started
	_, err := ln.Listen(ctx, addr)
	return err
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	cfg.Gimbal.Simulate = *sim
	if *sim && *actuatorKind == "gpio" {
		*actuatorKind = "none"
	}
	if *telemetryPath != "" {
		cfg.Telemetry.Path = *telemetryPath
	}
	if *interval > 0 {
		cfg.Telemetry.Interval = *interval
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	eg, ctx := errgroup.WithContext(ctx)

	metrics, err := observability.NewCollector(nil)
	if err != nil {
		return err
	}

	var src rotator.OrientationSource
	if !*sim {
		if src, err = openIMU(ctx); err != nil {
			return err
		}
	}
	act, err := openActuator(cfg)
	if err != nil {
		return err
	}
	defer act.Close()

	var srv *Server
	g, err := gimbal.New(cfg.Gimbal, src, act,
		gimbal.WithStatusCallback(func(status rotator.Status) {
			srv.statusCallback(status)
		}),
		gimbal.WithRecorder(metrics),
	)
	if err != nil {
		return err
	}
	srv = NewServer(g, g)

	limits := g.Limits()
	rs := rotctld.New(g,
		rotctld.WithCaps(rotctld.Caps{MinAz: limits.AzMin, MaxAz: limits.AzMax, MinEl: limits.ElMin, MaxEl: limits.ElMax}),
		rotctld.WithRecorder(metrics),
	)
	if *sim {
		log.Print("simulation mode; no hardware will be driven")
	}

	if err := startCore(ctx, eg, g, rs, fmt.Sprintf(":%d", *port)); err != nil {
		return err
	}

	reader := telemetry.NewReader(cfg.Telemetry.Path, cfg.Telemetry.Interval)
	eg.Go(func() error {
		return reader.Run(ctx, func(rec telemetry.Record) {
			metrics.ObserveTelemetry(rec)
			srv.telemetryCallback(rec)
			if summary := rec.Summary(); summary != "" {
				az, el := g.Position()
				log.Printf("az %.2f el %.2f %s", az, el, summary)
			}
		})
	})

	if *httpAddr != "" {
		hs := &http.Server{
			Handler:           srv.Router(metrics.Handler()),
			Addr:              *httpAddr,
			ReadHeaderTimeout: 15 * time.Second,
		}
		eg.Go(func() error {
			log.Printf("Listening on %v", hs.Addr)
			if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	if *useConsole {
		eg.Go(func() error {
			return console.New(g, g, os.Stdout).Run(ctx, os.Stdin)
		})
	}

	return eg.Wait()
}
