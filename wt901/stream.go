package wt901

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/tarm/serial"
	"golang.org/x/sync/errgroup"
)

const (
	frameHeader = 0x55
	frameAngle  = 0x53
	frameLen    = 11
)

var errChecksum = errors.New("bad checksum")

// ConnectSerial reads the TTL streaming protocol from port in the background
// until ctx is canceled.
func ConnectSerial(ctx context.Context, port string, baud int, callback ReadingCallback) (*Device, error) {
	if baud == 0 {
		baud = 9600
	}
	d := &Device{callback: callback}
	go d.reconnectLoop(ctx, port, baud)
	return d, nil
}

func (d *Device) reconnectLoop(ctx context.Context, port string, baud int) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(1 * time.Second):
		}
		c := &serial.Config{Name: port, Baud: baud}
		s, err := serial.OpenPort(c)
		if err != nil {
			log.Printf("opening %q: %v", port, err)
			continue
		}
		log.Printf("opened %q", port)
		if err := d.watch(ctx, s); err != nil && ctx.Err() == nil {
			log.Printf("watching %q: %v", port, err)
		}
	}
}

func (d *Device) watch(ctx context.Context, s io.ReadCloser) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Wait for context to be canceled, then close port.
		<-ctx.Done()
		return s.Close()
	})
	g.Go(func() error {
		err := d.decode(s)
		if err == nil {
			err = io.EOF
		}
		return err
	})
	return g.Wait()
}

// decode consumes frames until r is exhausted. Non-angle frames and frames
// with bad checksums are skipped.
func (d *Device) decode(r io.Reader) error {
	br := bufio.NewReader(r)
	frame := make([]byte, frameLen)
	for {
		b, err := br.ReadByte()
		if err != nil {
			return eof(err)
		}
		if b != frameHeader {
			continue
		}
		peek, err := br.Peek(frameLen - 1)
		if err != nil {
			return eof(err)
		}
		frame[0] = b
		copy(frame[1:], peek)
		reading, ok, err := parseFrame(frame)
		if err != nil {
			// Resync on the next header byte.
			continue
		}
		br.Discard(frameLen - 1)
		if ok {
			reading.Time = time.Now()
			d.update(reading)
		}
	}
}

func eof(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("reading port: %w", err)
}

// parseFrame decodes an 11-byte frame. ok is false for valid frames that do
// not carry angles.
func parseFrame(f []byte) (Reading, bool, error) {
	if len(f) != frameLen || f[0] != frameHeader {
		return Reading{}, false, errors.New("not a frame")
	}
	var sum byte
	for _, b := range f[:frameLen-1] {
		sum += b
	}
	if sum != f[frameLen-1] {
		return Reading{}, false, errChecksum
	}
	if f[1] != frameAngle {
		return Reading{}, false, nil
	}
	return Reading{
		Roll:  angle(f[2], f[3]),
		Pitch: angle(f[4], f[5]),
		Yaw:   angle(f[6], f[7]),
	}, true, nil
}
