package modbus

import (
	"context"
	"log"
	"time"

	"github.com/goburrow/modbus"
	"github.com/w1xm/rotator_bridge/internal/modbus/modbushttp"
)

type modbusHandler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// Client keeps a Modbus RTU connection open and calls Poll while it is up.
type Client struct {
	// Port and BaudRate create a local serial connection
	Port string
	// BaudRate defaults to 9600
	BaudRate int
	SlaveId  byte
	// URL creates a remote connection through an imu_bridge
	URL      string
	Password string
	// Timeout bounds each request; defaults to 1s
	Timeout time.Duration

	// Poll function to be called in a loop while the connection is active
	Poll func() error
	// PollInterval is the pause between calls to Poll
	PollInterval time.Duration

	handler modbusHandler
	modbus.Client
}

func (c *Client) Connect(ctx context.Context) error {
	if c.Timeout == 0 {
		c.Timeout = time.Second
	}
	if c.URL != "" {
		client := modbushttp.NewClient(c.URL, c.SlaveId)
		client.Password = c.Password
		client.Timeout = c.Timeout
		c.handler = client
	} else {
		handler := modbus.NewRTUClientHandler(c.Port)
		handler.BaudRate = c.BaudRate
		if handler.BaudRate == 0 {
			handler.BaudRate = 9600
		}
		handler.DataBits = 8
		handler.Parity = "N"
		handler.StopBits = 1
		handler.Timeout = c.Timeout
		handler.SlaveId = c.SlaveId
		c.handler = handler
	}

	c.Client = modbus.NewClient(c.handler)
	go c.reconnectLoop(ctx)
	return nil
}

func (c *Client) reconnectLoop(ctx context.Context) {
	port := c.URL
	if port == "" {
		port = c.Port
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(1 * time.Second):
		}

		err := c.handler.Connect()
		if err != nil {
			log.Printf("opening %q: %v", port, err)
			continue
		}
		log.Printf("opened %q", port)
		if err := c.watch(ctx); err != nil {
			log.Printf("watching %q: %v", port, err)
		}
	}
}

func (c *Client) watch(ctx context.Context) error {
	defer c.handler.Close()
	for {
		if err := c.Poll(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.PollInterval):
		}
	}
}
