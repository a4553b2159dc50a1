package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const (
	issLine1 = "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
	issLine2 = "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537"
)

var issEpoch = time.Date(2008, time.September, 20, 12, 25, 40, 0, time.UTC)

func TestStateFromTLE_ISS(t *testing.T) {
	pos, vel, err := StateFromTLE(issLine1, issLine2, issEpoch)
	if err != nil {
		t.Fatalf("StateFromTLE: %v", err)
	}
	if alt := pos.Norm() - EarthRadiusKm; alt < 300 || alt > 450 {
		t.Fatalf("ISS altitude = %.1f km, want 300..450", alt)
	}
	if speed := vel.Norm(); speed < 7.4 || speed > 7.9 {
		t.Fatalf("ISS speed = %.3f km/s, want ~7.7", speed)
	}
}

func TestStateFromTLE_RejectsMalformedLines(t *testing.T) {
	badChecksum := issLine1[:68] + "0"
	cases := map[string][2]string{
		"short line":     {issLine1[:60], issLine2},
		"bad checksum":   {badChecksum, issLine2},
		"swapped lines":  {issLine2, issLine1},
		"non-digit csum": {issLine1[:68] + "x", issLine2},
	}
	for name, lines := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := StateFromTLE(lines[0], lines[1], issEpoch)
			if !errors.Is(err, ErrInvalidTLE) {
				t.Fatalf("err = %v, want ErrInvalidTLE", err)
			}
		})
	}
}

// withChar replaces the character at i and rewrites the checksum so only the
// field content is wrong.
func withChar(line string, i int, c byte) string {
	b := []byte(line[:tleLineLength-1])
	b[i] = c
	sum := tleChecksum(string(b))
	return string(b) + string(rune('0'+sum))
}

func TestStateFromTLE_RejectsNonNumericFields(t *testing.T) {
	cases := []struct {
		name  string
		line  int
		index int
	}{
		{"catalog number", 1, 3},
		{"epoch year", 1, 18},
		{"epoch day", 1, 25},
		{"mean motion derivative", 1, 36},
		{"mean motion second derivative", 1, 46},
		{"BSTAR", 1, 55},
		{"inclination", 2, 10},
		{"right ascension", 2, 19},
		{"eccentricity", 2, 28},
		{"argument of perigee", 2, 36},
		{"mean anomaly", 2, 45},
		{"mean motion", 2, 55},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			line1, line2 := issLine1, issLine2
			if tc.line == 1 {
				line1 = withChar(line1, tc.index, 'X')
			} else {
				line2 = withChar(line2, tc.index, 'X')
			}
			_, _, err := StateFromTLE(line1, line2, issEpoch)
			if !errors.Is(err, ErrInvalidTLE) {
				t.Fatalf("err = %v, want ErrInvalidTLE", err)
			}
			if !strings.Contains(err.Error(), tc.name) {
				t.Fatalf("err = %v, want it to name %q", err, tc.name)
			}
		})
	}
}

func TestStateFromTLE_LetterKeepsChecksum(t *testing.T) {
	// Letters count as zero, so swapping a zero digit leaves the checksum valid.
	line1 := issLine1[:18] + "X" + issLine1[19:]
	if err := checkTLELine(line1, '1'); err != nil {
		t.Fatalf("checkTLELine: %v", err)
	}
	if _, _, err := StateFromTLE(line1, issLine2, issEpoch); !errors.Is(err, ErrInvalidTLE) {
		t.Fatalf("err = %v, want ErrInvalidTLE", err)
	}
}

func TestStateFromTLE_TrimsTrailingWhitespace(t *testing.T) {
	if _, _, err := StateFromTLE(issLine1+"  \r\n", issLine2+"\n", issEpoch); err != nil {
		t.Fatalf("StateFromTLE with trailing whitespace: %v", err)
	}
}

func TestTLEChecksum(t *testing.T) {
	if got := tleChecksum(issLine1[:68]); got != 7 {
		t.Fatalf("line 1 checksum = %d, want 7", got)
	}
	if got := tleChecksum(strings.Repeat("-", 13)); got != 3 {
		t.Fatalf("minus signs count as one: got %d", got)
	}
}
