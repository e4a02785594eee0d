package wt901

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/w1xm/rotator_bridge/internal/modbus"
)

// Register block starting at AX. Angles are at RollOffset..YawOffset,
// temperature follows.
const (
	regStart    = 0x34
	regCount    = 13
	rollOffset  = 0x3d - regStart
	pitchOffset = 0x3e - regStart
	yawOffset   = 0x3f - regStart
	tempOffset  = 0x40 - regStart
)

type ModbusConfig struct {
	// Port is the local serial device. Ignored when URL is set.
	Port     string
	BaudRate int
	Address  byte
	// URL and Password reach an imu_bridge on another host.
	URL      string
	Password string
	// PollInterval defaults to 10ms.
	PollInterval time.Duration
}

type registerReader interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
}

// ConnectModbus polls the sensor's holding registers in the background until
// ctx is canceled.
func ConnectModbus(ctx context.Context, cfg ModbusConfig, callback ReadingCallback) (*Device, error) {
	if cfg.Address == 0 {
		cfg.Address = DefaultAddress
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	d := &Device{callback: callback}
	c := &modbus.Client{
		Port:         cfg.Port,
		BaudRate:     cfg.BaudRate,
		SlaveId:      cfg.Address,
		URL:          cfg.URL,
		Password:     cfg.Password,
		PollInterval: cfg.PollInterval,
	}
	c.Poll = func() error {
		return d.poll(c)
	}
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) poll(c registerReader) error {
	results, err := c.ReadHoldingRegisters(regStart, regCount)
	if err != nil {
		return fmt.Errorf("reading registers: %w", err)
	}
	r, err := parseRegisters(results)
	if err != nil {
		return err
	}
	r.Time = time.Now()
	d.update(r)
	return nil
}

func parseRegisters(b []byte) (Reading, error) {
	if len(b) < 2*regCount {
		return Reading{}, fmt.Errorf("short register block: %d bytes", len(b))
	}
	reg := func(i int) int16 {
		return int16(binary.BigEndian.Uint16(b[2*i:]))
	}
	deg := func(i int) float64 {
		return float64(reg(i)) / 32768 * 180
	}
	return Reading{
		Roll:        deg(rollOffset),
		Pitch:       deg(pitchOffset),
		Yaw:         deg(yawOffset),
		Temperature: float64(reg(tempOffset)) / 100,
	}, nil
}
