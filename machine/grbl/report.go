package grbl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mastercactapus/grblstream/coord"
	"github.com/mastercactapus/grblstream/gcode"
)

// StatusReport holds the fields carried by one `<...>` report. Fields the
// report did not carry are nil.
type StatusReport struct {
	Status string

	MPos *coord.Point
	WPos *coord.Point
	WCO  *coord.Point

	Feed    *float64
	Spindle *float64
}

func parseFloat(s string) (*float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parsePoint(s string) (*coord.Point, error) {
	p, err := coord.ParsePoint(s)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseStatusReport parses the body of a status report, e.g.
// `Idle|MPos:1.000,2.000,3.000|FS:500,0`.
//
// Fields may come in any order after the state label. Fields other than
// MPos, WPos, WCO, FS and F are ignored.
func ParseStatusReport(body string) (*StatusReport, error) {
	parts := strings.Split(body, "|")
	if parts[0] == "" {
		return nil, errors.New("status report without state: " + body)
	}
	stat := &StatusReport{Status: parts[0]}

	var err error
	for _, s := range parts[1:] {
		name, val, _ := strings.Cut(s, ":")
		switch name {
		case "MPos":
			stat.MPos, err = parsePoint(val)
		case "WPos":
			stat.WPos, err = parsePoint(val)
		case "WCO":
			stat.WCO, err = parsePoint(val)
		case "F":
			stat.Feed, err = parseFloat(val)
		case "FS":
			feed, spindle, ok := strings.Cut(val, ",")
			if !ok {
				return nil, errors.New("invalid FS field: " + s)
			}
			stat.Feed, err = parseFloat(feed)
			if err == nil {
				stat.Spindle, err = parseFloat(spindle)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("parse status field %s: %w", name, err)
		}
	}
	return stat, nil
}

// ParseModeReport parses the body of a `[GC:...]` report.
func ParseModeReport(body string) (gcode.Block, error) {
	return gcode.ParseModeReport(body)
}
