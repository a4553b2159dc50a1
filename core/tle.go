package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/debris-avoidance-sim/model"
)

// ErrInvalidTLE indicates a two-line element set could not be used.
var ErrInvalidTLE = errors.New("invalid TLE")

const tleLineLength = 69

// StateFromTLE propagates a two-line element set with SGP4 to the given time
// and returns the inertial (TEME) position and velocity in km and km/s.
//
// go-satellite aborts the process on malformed numeric fields, so the lines
// are checked for shape, checksum and parseable fields before they are
// handed over.
func StateFromTLE(line1, line2 string, at time.Time) (pos, vel model.Vec3, err error) {
	line1 = strings.TrimRight(line1, " \r\n")
	line2 = strings.TrimRight(line2, " \r\n")
	if err := checkTLELine(line1, '1'); err != nil {
		return pos, vel, err
	}
	if err := checkTLELine(line2, '2'); err != nil {
		return pos, vel, err
	}
	if err := checkTLEFields(line1, line2); err != nil {
		return pos, vel, err
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)

	at = at.UTC()
	year, month, day := at.Date()
	hour, min, sec := at.Clock()
	p, v := satellite.Propagate(sat, year, int(month), day, hour, min, sec)

	pos = model.Vec3{X: p.X, Y: p.Y, Z: p.Z}
	vel = model.Vec3{X: v.X, Y: v.Y, Z: v.Z}
	if !pos.IsFinite() || !vel.IsFinite() || pos.Norm() == 0 {
		return model.Vec3{}, model.Vec3{}, fmt.Errorf("%w: SGP4 propagation to %s failed", ErrInvalidTLE, at.Format(time.RFC3339))
	}
	return pos, vel, nil
}

func checkTLELine(line string, number byte) error {
	if len(line) < tleLineLength {
		return fmt.Errorf("%w: line %c has %d characters, want %d", ErrInvalidTLE, number, len(line), tleLineLength)
	}
	if line[0] != number || line[1] != ' ' {
		return fmt.Errorf("%w: line %c has wrong line number", ErrInvalidTLE, number)
	}
	want := int(line[tleLineLength-1] - '0')
	if want < 0 || want > 9 {
		return fmt.Errorf("%w: line %c checksum is not a digit", ErrInvalidTLE, number)
	}
	if got := tleChecksum(line[:tleLineLength-1]); got != want {
		return fmt.Errorf("%w: line %c checksum %d, want %d", ErrInvalidTLE, number, got, want)
	}
	return nil
}

// tleField is one numeric column as go-satellite slices it out of a line.
type tleField struct {
	name  string
	line  byte
	text  func(line string) string
	isInt bool
}

func squeeze(s string) string { return strings.Replace(s, " ", "", 2) }

var tleFields = []tleField{
	{name: "catalog number", line: '1', isInt: true, text: func(l string) string { return strings.TrimSpace(l[2:7]) }},
	{name: "epoch year", line: '1', isInt: true, text: func(l string) string { return l[18:20] }},
	{name: "epoch day", line: '1', text: func(l string) string { return l[20:32] }},
	{name: "mean motion derivative", line: '1', text: func(l string) string { return squeeze(l[33:43]) }},
	{name: "mean motion second derivative", line: '1', text: func(l string) string {
		return squeeze(l[44:45] + "." + l[45:50] + "e" + l[50:52])
	}},
	{name: "BSTAR", line: '1', text: func(l string) string {
		return squeeze(l[53:54] + "." + l[54:59] + "e" + l[59:61])
	}},
	{name: "inclination", line: '2', text: func(l string) string { return squeeze(l[8:16]) }},
	{name: "right ascension", line: '2', text: func(l string) string { return squeeze(l[17:25]) }},
	{name: "eccentricity", line: '2', text: func(l string) string { return "." + l[26:33] }},
	{name: "argument of perigee", line: '2', text: func(l string) string { return squeeze(l[34:42]) }},
	{name: "mean anomaly", line: '2', text: func(l string) string { return squeeze(l[43:51]) }},
	{name: "mean motion", line: '2', text: func(l string) string { return squeeze(l[52:63]) }},
}

// checkTLEFields parses every numeric column go-satellite reads. Lines must
// already have passed checkTLELine.
func checkTLEFields(line1, line2 string) error {
	for _, f := range tleFields {
		line := line1
		if f.line == '2' {
			line = line2
		}
		text := f.text(line)
		var err error
		if f.isInt {
			_, err = strconv.ParseInt(text, 10, 0)
		} else {
			_, err = strconv.ParseFloat(text, 64)
		}
		if err != nil {
			return fmt.Errorf("%w: line %c %s %q is not a number", ErrInvalidTLE, f.line, f.name, text)
		}
	}
	return nil
}

// tleChecksum sums the digits of the line, counting '-' as one, modulo 10.
func tleChecksum(s string) int {
	sum := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}
