package main

import (
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestFlattenStatus(t *testing.T) {
	var status interface{}
	if err := json.Unmarshal([]byte(`{
		"az_pos": 12.5,
		"sensor_okay": true,
		"signal": "SIG=-31.2dB @100.20 MHz R=0.52",
		"telemetry": {"peak_power_db": -31.2, "device": "rtl"},
		"bands": [1, 2],
		"missing": null
	}`), &status); err != nil {
		t.Fatal(err)
	}
	fields := make(map[string]interface{})
	flattenStatus(fields, status, "")
	want := map[string]interface{}{
		"az_pos":                  12.5,
		"sensor_okay":             true,
		"signal":                  "SIG=-31.2dB @100.20 MHz R=0.52",
		"telemetry.peak_power_db": -31.2,
		"telemetry.device":        "rtl",
		"bands.0":                 1.0,
		"bands.1":                 2.0,
	}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("flattenStatus() mismatch (-want +got):\n%s", diff)
	}
}

func TestSqliteSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gimbal.db")
	sink, err := openSqliteSink(path)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Unix(1700000000, 0)
	if err := sink.Write(now, map[string]interface{}{
		"az_pos":      45.0,
		"el_pos":      10.0,
		"sensor_okay": true,
	}); err != nil {
		t.Fatal(err)
	}
	if err := sink.Write(now.Add(time.Second), map[string]interface{}{"stopped": true}); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	rows, err := db.Query(`SELECT timestamp, az_pos, el_pos, sensor_okay FROM status_samples ORDER BY id`)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	type row struct {
		Timestamp int64
		Az, El    sql.NullFloat64
		Okay      sql.NullBool
	}
	var got []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.Timestamp, &r.Az, &r.El, &r.Okay); err != nil {
			t.Fatal(err)
		}
		got = append(got, r)
	}
	if err := rows.Err(); err != nil {
		t.Fatal(err)
	}
	want := []row{
		{
			Timestamp: now.UnixNano(),
			Az:        sql.NullFloat64{Float64: 45, Valid: true},
			El:        sql.NullFloat64{Float64: 10, Valid: true},
			Okay:      sql.NullBool{Bool: true, Valid: true},
		},
		{Timestamp: now.Add(time.Second).UnixNano()},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stored rows mismatch (-want +got):\n%s", diff)
	}
}
