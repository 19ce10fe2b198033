// Package gtfstest builds small static GTFS archives for tests.
package gtfstest

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// Files is a three-station network:
//
//	STN_A (station) <- A1 (platform)
//	STN_B (station) <- B1 (platform)
//	STN_C (station) <- C1 (platform)
//	X9 is a platform with no parent station.
//
// Trip T1 on route RED visits A1, X9, B1, C1 at sequences 1..4.
// Trip T2 on route BLUE visits C1 then A1.
var Files = map[string]string{
	"agency.txt": "agency_id,agency_name,agency_url,agency_timezone\n" +
		"MET,Metro,https://example.test,America/New_York\n",
	"stops.txt": "\ufeffstop_id,stop_name,stop_lat,stop_lon,location_type,parent_station\n" +
		"STN_A,Alpha Station,38.90,-77.03,1,\n" +
		"A1,Alpha Platform 1,38.90,-77.03,0,STN_A\n" +
		"STN_B,Bravo Station,38.91,-77.04,1,\n" +
		"B1,Bravo Platform 1,38.91,-77.04,0,STN_B\n" +
		"STN_C,Charlie Station,38.92,-77.05,1,\n" +
		"C1,Charlie Platform 1,38.92,-77.05,0,STN_C\n" +
		"X9,Crossover,38.905,-77.035,0,\n",
	"routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_type,route_color,route_text_color\n" +
		"RED,MET,RD,Red Line,1,BF0D3E,FFFFFF\n" +
		"BLUE,MET,BL,Blue Line,1,009CDE,FFFFFF\n",
	"trips.txt": "route_id,service_id,trip_id,trip_headsign,direction_id\n" +
		"RED,WKD,T1,Charlie,0\n" +
		"BLUE,WKD,T2,Alpha,1\n",
	"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
		"T1,08:00:00,08:00:30,A1,1\n" +
		"T1,,08:04:00,X9,2\n" +
		"T1,08:07:00,08:07:30,B1,3\n" +
		"T1,08:12:00,,C1,4\n" +
		"T2,23:50:00,23:50:30,C1,1\n" +
		"T2,24:05:00,24:05:30,A1,2\n",
}

// ZipBytes renders files as a zip archive.
func ZipBytes(t testing.TB, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("creating %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return buf.Bytes()
}

// WriteZip writes files as a zip archive into dir and returns its path.
func WriteZip(t testing.TB, dir string, files map[string]string) string {
	t.Helper()

	path := filepath.Join(dir, "gtfs.zip")
	if err := os.WriteFile(path, ZipBytes(t, files), 0o644); err != nil {
		t.Fatalf("writing zip: %v", err)
	}
	return path
}
