package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// ListenCC watches a control change on the given channel and calls fn
// with its value scaled to [0, 1]. The returned stop function closes
// the listener.
func ListenCC(portName string, channel, controller uint8, fn func(float64)) (func(), error) {
	in, err := FindInPort(portName)
	if err != nil {
		return nil, err
	}
	stop, err := gomidi.ListenTo(in, func(msg gomidi.Message, timestampms int32) {
		var ch, cc, val uint8
		if msg.GetControlChange(&ch, &cc, &val) && ch == channel && cc == controller {
			fn(float64(val) / 127)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return stop, nil
}

// CCOut sends values to a control change, scaling [0, 1] to 0-127.
// Repeated identical values are dropped.
type CCOut struct {
	send       func(gomidi.Message) error
	channel    uint8
	controller uint8
	last       int16
}

// NewCCOut opens an output port by name for control change sends
func NewCCOut(portName string, channel, controller uint8) (*CCOut, error) {
	out, err := FindOutPort(portName)
	if err != nil {
		return nil, err
	}
	send, err := gomidi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	return &CCOut{send: send, channel: channel, controller: controller, last: -1}, nil
}

// Send scales v to a controller value and sends it if it changed
func (c *CCOut) Send(v float64) error {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	val := uint8(v*127 + 0.5)
	if int16(val) == c.last {
		return nil
	}
	c.last = int16(val)
	return c.send(gomidi.ControlChange(c.channel, c.controller, val))
}
