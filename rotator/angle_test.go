package rotator

import (
	"math"
	"math/rand"
	"testing"
)

func TestShortestError(t *testing.T) {
	for _, test := range []struct {
		target, current, want float64
	}{
		{179, -179, -2},
		{-179, 179, 2},
		{10, 0, 10},
		{0, 10, -10},
		{180, 0, 180},
		{-90, 90, -180},
		{350, 10, -20},
	} {
		if got := ShortestError(test.target, test.current); math.Abs(got-test.want) > 1e-9 {
			t.Errorf("ShortestError(%v, %v) = %v, want %v", test.target, test.current, got, test.want)
		}
	}
}

func TestShortestErrorRange(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 10000; i++ {
		target := r.Float64()*720 - 360
		current := r.Float64()*720 - 360
		e := ShortestError(target, current)
		if e < -180 || e > 180 {
			t.Fatalf("ShortestError(%v, %v) = %v out of range", target, current, e)
		}
		// Rotating current by the error must land on target modulo 360.
		if d := math.Abs(Normalize(current + e - target)); d > 1e-9 {
			t.Fatalf("ShortestError(%v, %v) = %v does not reach target (off by %v)", target, current, e, d)
		}
	}

	inf := math.Inf(1)
	for _, test := range []struct {
		target, current float64
	}{
		{1e20, 0},
		{0, -1e20},
		{1e300, 1e-300},
		{-math.MaxFloat64, 0},
		{inf, 0},
		{0, inf},
		{-inf, 45},
		{inf, inf},
		{math.NaN(), 0},
	} {
		e := ShortestError(test.target, test.current)
		if math.IsNaN(e) || e < -180 || e > 180 {
			t.Errorf("ShortestError(%v, %v) = %v out of range", test.target, test.current, e)
		}
	}
}

func TestNormalize(t *testing.T) {
	for _, test := range []struct {
		in, want float64
	}{
		{0, 0},
		{270, -90},
		{-270, 90},
		{630, -90},
		{45, 45},
	} {
		if got := Normalize(test.in); math.Abs(got-test.want) > 1e-9 {
			t.Errorf("Normalize(%v) = %v, want %v", test.in, got, test.want)
		}
	}
}
