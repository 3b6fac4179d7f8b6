// Package sensor talks to the presence sensors on the shared bus.
//
// Every sensor has a 7-bit address and answers three commands:
//
//	0x01  presence      reply: 1 byte, non-zero = object detected
//	0x02  blink status  reply: 1 byte, non-zero = indicator blinking
//	0x03  set led       payload {on, 0xFF}, no reply
//
// On a broker the bus is mapped onto topics under a prefix:
//
//	<prefix>/sensor/<addr>/cmd    controller -> sensor
//	<prefix>/sensor/<addr>/reply  sensor -> controller
//	<prefix>/sensor/<addr>/irq    sensor -> controller, presence changed
package sensor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	CmdPresence    byte = 0x01
	CmdBlinkStatus byte = 0x02
	CmdSetLed      byte = 0x03

	frameEnd byte = 0xFF
)

var (
	ErrTimeout  = errors.New("sensor bus timeout")
	ErrNoClient = errors.New("sensor bus not connected")
	ErrBadReply = errors.New("malformed sensor reply")
)

// Topics builds the bus topics for one installation prefix.
type Topics struct {
	Prefix string
}

func (t Topics) base() string {
	p := strings.Trim(t.Prefix, "/")
	if p == "" {
		return "sensor"
	}
	return p + "/sensor"
}

func (t Topics) Command(addr uint8) string {
	return fmt.Sprintf("%s/%02x/cmd", t.base(), addr)
}

func (t Topics) Reply(addr uint8) string {
	return fmt.Sprintf("%s/%02x/reply", t.base(), addr)
}

func (t Topics) Change(addr uint8) string {
	return fmt.Sprintf("%s/%02x/irq", t.base(), addr)
}

func (t Topics) ReplyFilter() string {
	return t.base() + "/+/reply"
}

func (t Topics) ChangeFilter() string {
	return t.base() + "/+/irq"
}

// Address extracts the sensor address from any bus topic.
func (t Topics) Address(topic string) (uint8, error) {
	rest, ok := strings.CutPrefix(topic, t.base()+"/")
	if !ok {
		return 0, fmt.Errorf("topic %q is not under %s", topic, t.base())
	}
	seg, _, _ := strings.Cut(rest, "/")
	v, err := strconv.ParseUint(seg, 16, 8)
	if err != nil || v > 0x7F {
		return 0, fmt.Errorf("topic %q has no valid sensor address", topic)
	}
	return uint8(v), nil
}

func ledFrame(on bool) []byte {
	var v byte
	if on {
		v = 0x01
	}
	return []byte{CmdSetLed, v, frameEnd}
}
