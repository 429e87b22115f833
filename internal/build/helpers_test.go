package build

import (
	"archive/zip"
	"bytes"
	"maps"
	"os"
	"slices"
	"testing"
)

func zipBytes(tb testing.TB, files map[string]string) []byte {
	tb.Helper()
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	names := slices.Sorted(maps.Keys(files))
	for _, name := range names {
		content := files[name]
		w, err := zw.Create(name)
		if err != nil {
			tb.Fatalf("didn't want %q", err)
		}
		if _, err = w.Write([]byte(content)); err != nil {
			tb.Fatalf("didn't want %q", err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	return buf.Bytes()
}

func gtfsZip(tb testing.TB) []byte {
	tb.Helper()
	return zipBytes(tb, map[string]string{
		"agency.txt":     "agency_id,agency_name\nTT,Test Transit\n",
		"routes.txt":     "route_id,route_short_name\nR1,1\n",
		"trips.txt":      "route_id,service_id,trip_id\nR1,WK,T1\n",
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\nT1,08:00:00,08:00:00,S1,1\n",
	})
}

// dirEntries returns the names in dir, failing the test on error.
func dirEntries(tb testing.TB, dir string) []string {
	tb.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
