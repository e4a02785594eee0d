package main

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

type fakeLoop struct {
	log     *eventLog
	running chan struct{}
}

func (f *fakeLoop) Run(ctx context.Context) error {
	f.log.add("run")
	close(f.running)
	<-ctx.Done()
	return ctx.Err()
}

type fakeListener struct {
	log     *eventLog
	running chan struct{}
	err     error
}

func (f *fakeListener) Listen(ctx context.Context, addr string) (net.Addr, error) {
	// Wait until the loop is really running before recording the bind.
	<-f.running
	f.log.add("listen " + addr)
	if f.err != nil {
		return nil, f.err
	}
	return &net.TCPAddr{Port: 4533}, nil
}

func TestStartCoreRunsLoopBeforeListening(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	eg, ctx := errgroup.WithContext(ctx)
	log := &eventLog{}
	running := make(chan struct{})
	if err := startCore(ctx, eg, &fakeLoop{log, running}, &fakeListener{log: log, running: running}, ":4533"); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := eg.Wait(); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait = %v, want Canceled", err)
	}
	if diff := cmp.Diff([]string{"run", "listen :4533"}, log.events); diff != "" {
		t.Errorf("start order mismatch (-want +got):\n%s", diff)
	}
}

func TestStartCoreBindFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)
	log := &eventLog{}
	running := make(chan struct{})
	bindErr := errors.New("address already in use")
	err := startCore(ctx, eg, &fakeLoop{log, running}, &fakeListener{log: log, running: running, err: bindErr}, ":4533")
	if !errors.Is(err, bindErr) {
		t.Errorf("startCore = %v, want %v", err, bindErr)
	}
	cancel()
	eg.Wait()
}
