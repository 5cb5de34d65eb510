package host

import (
	"testing"

	"pkt.systems/termplex/schema"
)

func TestWinsizeClampsDimensions(t *testing.T) {
	cases := []struct {
		geometry   schema.Geometry
		cols, rows uint16
	}{
		{schema.Geometry{Cols: 80, Rows: 24}, 80, 24},
		{schema.Geometry{Cols: 70000, Rows: 65536}, 65535, 65535},
		{schema.Geometry{Cols: -1, Rows: 0}, 0, 0},
	}
	for _, tc := range cases {
		ws := winsize(tc.geometry)
		if ws.Cols != tc.cols || ws.Rows != tc.rows {
			t.Fatalf("winsize(%+v) = %dx%d, want %dx%d", tc.geometry, ws.Cols, ws.Rows, tc.cols, tc.rows)
		}
	}
}
