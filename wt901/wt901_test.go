package wt901

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func raw(deg float64) int16 {
	return int16(deg / 180 * 32768)
}

func frame(typ byte, values ...int16) []byte {
	f := []byte{frameHeader, typ}
	for _, v := range values {
		f = binary.LittleEndian.AppendUint16(f, uint16(v))
	}
	for len(f) < frameLen-1 {
		f = append(f, 0)
	}
	var sum byte
	for _, b := range f {
		sum += b
	}
	return append(f, sum)
}

var approx = cmpopts.EquateApprox(0, 0.01)

func TestParseRegisters(t *testing.T) {
	regs := make([]uint16, regCount)
	regs[rollOffset] = uint16(raw(1.5))
	regs[pitchOffset] = uint16(raw(-20))
	regs[yawOffset] = uint16(raw(135))
	regs[tempOffset] = 2512
	var b []byte
	for _, r := range regs {
		b = binary.BigEndian.AppendUint16(b, r)
	}
	got, err := parseRegisters(b)
	if err != nil {
		t.Fatal(err)
	}
	want := Reading{Roll: 1.5, Pitch: -20, Yaw: 135, Temperature: 25.12}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("parseRegisters() mismatch (-want +got):\n%s", diff)
	}
	if _, err := parseRegisters(b[:10]); err == nil {
		t.Error("parseRegisters(short) succeeded")
	}
}

func TestParseFrame(t *testing.T) {
	bad := frame(frameAngle, 1, 2, 3)
	bad[frameLen-1]++
	tests := []struct {
		name    string
		in      []byte
		want    Reading
		wantOK  bool
		wantErr bool
	}{
		{
			name:   "angles",
			in:     frame(frameAngle, raw(10), raw(45), raw(-90)),
			want:   Reading{Roll: 10, Pitch: 45, Yaw: -90},
			wantOK: true,
		},
		{
			name: "acceleration",
			in:   frame(0x51, 100, 200, 300),
		},
		{
			name:    "checksum",
			in:      bad,
			wantErr: true,
		},
		{
			name:    "short",
			in:      []byte{frameHeader, frameAngle},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := parseFrame(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFrame() error = %v, wantErr %v", err, tt.wantErr)
			}
			if ok != tt.wantOK {
				t.Errorf("parseFrame() ok = %v, want %v", ok, tt.wantOK)
			}
			if diff := cmp.Diff(tt.want, got, approx); diff != "" {
				t.Errorf("parseFrame() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeResyncs(t *testing.T) {
	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x13, frameHeader, 0x7f})
	stream.Write(frame(0x51, 1, 2, 3))
	corrupt := frame(frameAngle, raw(5), raw(5), raw(5))
	corrupt[frameLen-1] ^= 0xff
	stream.Write(corrupt)
	stream.Write(frame(frameAngle, raw(0), raw(30), raw(170)))
	stream.Write([]byte{frameHeader, frameAngle, 0x01})

	var got []Reading
	d := &Device{callback: func(r Reading) {
		got = append(got, r)
	}}
	if err := d.decode(&stream); err != nil {
		t.Fatal(err)
	}
	want := []Reading{{Pitch: 30, Yaw: 170}}
	if diff := cmp.Diff(want, got, approx, cmpopts.IgnoreFields(Reading{}, "Time")); diff != "" {
		t.Errorf("decoded readings mismatch (-want +got):\n%s", diff)
	}
	o, err := d.Orientation()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{170, 30}, []float64{o.Azimuth, o.Elevation}, approx); diff != "" {
		t.Errorf("Orientation() mismatch (-want +got):\n%s", diff)
	}
}

type fakeRegisters struct {
	b   []byte
	err error
}

func (f *fakeRegisters) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	if address != regStart || quantity != regCount {
		return nil, errors.New("unexpected register range")
	}
	return f.b, f.err
}

func TestPoll(t *testing.T) {
	d := &Device{}
	if _, err := d.Orientation(); !errors.Is(err, ErrNoReading) {
		t.Fatalf("Orientation() before first poll = %v, want ErrNoReading", err)
	}

	b := make([]byte, 2*regCount)
	binary.BigEndian.PutUint16(b[2*pitchOffset:], uint16(raw(12)))
	binary.BigEndian.PutUint16(b[2*yawOffset:], uint16(raw(-45)))
	if err := d.poll(&fakeRegisters{b: b}); err != nil {
		t.Fatal(err)
	}
	o, err := d.Orientation()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{-45, 12}, []float64{o.Azimuth, o.Elevation}, approx); diff != "" {
		t.Errorf("Orientation() mismatch (-want +got):\n%s", diff)
	}
	if o.Time.IsZero() {
		t.Error("Orientation() has no timestamp")
	}

	if err := d.poll(&fakeRegisters{err: errors.New("timeout")}); err == nil {
		t.Error("poll() with failing transport succeeded")
	}
	if _, err := d.Orientation(); err != nil {
		t.Errorf("Orientation() after failed poll = %v, want last good reading", err)
	}
}
