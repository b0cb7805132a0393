package midi

import (
	"fmt"
	"strings"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// FindInPort returns the first input port whose name contains name
// (case insensitive)
func FindInPort(name string) (drivers.In, error) {
	want := strings.ToLower(name)
	for _, in := range gomidi.GetInPorts() {
		if strings.Contains(strings.ToLower(in.String()), want) {
			return in, nil
		}
	}
	return nil, fmt.Errorf("no MIDI input matching %q", name)
}

// FindOutPort returns the first output port whose name contains name
// (case insensitive)
func FindOutPort(name string) (drivers.Out, error) {
	want := strings.ToLower(name)
	for _, out := range gomidi.GetOutPorts() {
		if strings.Contains(strings.ToLower(out.String()), want) {
			return out, nil
		}
	}
	return nil, fmt.Errorf("no MIDI output matching %q", name)
}

// PortNames lists the available input and output port names
func PortNames() (ins, outs []string) {
	for _, in := range gomidi.GetInPorts() {
		ins = append(ins, in.String())
	}
	for _, out := range gomidi.GetOutPorts() {
		outs = append(outs, out.String())
	}
	return ins, outs
}
