// Package telemetry reads the signal-quality record published by the SDR
// scanner. The file is rewritten in place by another process, so reads are
// best effort: a missing or half-written file just means no new record.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	DefaultPath     = "/tmp/sdr_last.json"
	DefaultInterval = 500 * time.Millisecond
)

var ErrNoRecord = errors.New("no telemetry record")

// Record is the latest spectral summary. Fields the producer did not fill in
// are nil.
type Record struct {
	// Timestamp is Unix seconds.
	Timestamp           float64  `json:"timestamp"`
	Device              string   `json:"device,omitempty"`
	CenterFreqHz        *float64 `json:"center_freq_hz,omitempty"`
	SampleRateHz        *float64 `json:"sample_rate_hz,omitempty"`
	AveragePowerDB      *float64 `json:"average_power_db,omitempty"`
	PeakPowerDB         *float64 `json:"peak_power_db,omitempty"`
	PeakFreqHz          *float64 `json:"peak_freq_hz,omitempty"`
	NoiseFloorDB        *float64 `json:"noise_floor_db,omitempty"`
	SignalStrengthRatio *float64 `json:"signal_strength_ratio,omitempty"`
}

func (r Record) Time() time.Time {
	sec, frac := math.Modf(r.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// Age returns how old the record was at now.
func (r Record) Age(now time.Time) time.Duration {
	return now.Sub(r.Time())
}

// HasSignal reports whether the fields needed for display are present.
func (r Record) HasSignal() bool {
	return r.PeakPowerDB != nil && r.PeakFreqHz != nil && r.SignalStrengthRatio != nil
}

// Summary renders the peak for a status line, e.g. "SIG=-31.2dB @100.20 MHz R=0.52".
func (r Record) Summary() string {
	if !r.HasSignal() {
		return ""
	}
	return fmt.Sprintf("SIG=%.1fdB @%s R=%.2f", *r.PeakPowerDB, formatHz(*r.PeakFreqHz), *r.SignalStrengthRatio)
}

func formatHz(hz float64) string {
	v, prefix := humanize.ComputeSI(hz)
	return strings.TrimSpace(humanize.FormatFloat("#.##", v) + " " + prefix + "Hz")
}

func parse(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}

type Callback func(r Record)

// Reader polls a telemetry file no more often than its interval.
type Reader struct {
	path     string
	interval time.Duration

	mu       sync.Mutex
	last     Record
	haveLast bool
	lastPoll time.Time
	lastErr  error
}

func NewReader(path string, interval time.Duration) *Reader {
	if path == "" {
		path = DefaultPath
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reader{path: path, interval: interval}
}

func (r *Reader) Path() string {
	return r.path
}

// Poll re-reads the file if the interval has elapsed since the previous read
// and returns the latest good record. A file that cannot be read or parsed
// leaves the previous record in place.
func (r *Reader) Poll(now time.Time) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.lastPoll.IsZero() && now.Sub(r.lastPoll) < r.interval {
		return r.last, r.haveLast
	}
	r.lastPoll = now
	rec, err := r.load()
	r.lastErr = err
	if err == nil {
		r.last, r.haveLast = rec, true
	}
	return r.last, r.haveLast
}

// Latest returns the last good record without touching the file.
func (r *Reader) Latest() (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.haveLast {
		if r.lastErr != nil {
			return Record{}, fmt.Errorf("%w: %v", ErrNoRecord, r.lastErr)
		}
		return Record{}, ErrNoRecord
	}
	return r.last, nil
}

func (r *Reader) load() (Record, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return Record{}, err
	}
	rec, err := parse(data)
	if err != nil {
		return Record{}, fmt.Errorf("parsing %q: %w", r.path, err)
	}
	return rec, nil
}

// Run polls every interval and hands each new record to cb until ctx is
// canceled. A record identical to the last one delivered is not repeated.
func (r *Reader) Run(ctx context.Context, cb Callback) error {
	var seen Record
	delivered := false
	for {
		if rec, ok := r.Poll(time.Now()); ok && (!delivered || !reflect.DeepEqual(rec, seen)) {
			seen, delivered = rec, true
			cb(rec)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.interval):
		}
	}
}
