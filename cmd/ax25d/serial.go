package main

import (
	"fmt"
	"io"
	"os"

	"github.com/creack/pty"
	serial "github.com/daedaluz/goserial"

	"github.com/vk7xyz/ax25d/pkg/clock"
)

// wireLink is one open serial link: the raw byte stream (a *serial.Port for
// real hardware, an *os.File for a dev pty) plus the serial index it
// answers to in KISS port bytes.
type wireLink struct {
	index  uint8
	reader io.Reader
	writer io.Writer
	closer io.Closer
	keyer  Keyer
}

// standardBauds maps the rates an operator is likely to put in a config
// file to the termios CFlag constants goserial expects. Anything else
// falls back to BOTHER + SetCustomSpeed.
var standardBauds = map[int]serial.CFlag{
	1200:    serial.B1200,
	2400:    serial.B2400,
	4800:    serial.B4800,
	9600:    serial.B9600,
	19200:   serial.B19200,
	38400:   serial.B38400,
	57600:   serial.B57600,
	115200:  serial.B115200,
	230400:  serial.B230400,
	460800:  serial.B460800,
	921600:  serial.B921600,
	1000000: serial.B1000000,
}

// openSerialLink opens device in raw 8N1, no-flow-control mode at baud and
// wraps it as a wireLink tagged with index, keying ptt (or a noopKeyer)
// around every write.
func openSerialLink(index uint8, device string, baud int, ptt *PTTConfig) (*wireLink, error) {
	port, err := serial.Open(device, serial.NewOptions().SetReadTimeout(-1))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	if err := configureBaud(port, baud); err != nil {
		port.Close()
		return nil, fmt.Errorf("configure %s: %w", device, err)
	}
	keyer, err := newKeyer(ptt)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("ptt for %s: %w", device, err)
	}
	return &wireLink{index: index, reader: port, writer: port, closer: port, keyer: keyer}, nil
}

func configureBaud(port *serial.Port, baud int) error {
	attrs, err := port.GetAttr2()
	if err != nil {
		return err
	}
	attrs.MakeRaw()
	attrs.Cflag |= serial.CREAD | serial.CLOCAL | serial.CS8
	attrs.Cflag &^= serial.PARENB | serial.CSTOPB | serial.CSIZE
	attrs.Cflag |= serial.CS8
	if cflag, ok := standardBauds[baud]; ok {
		attrs.SetSpeed(cflag)
	} else {
		attrs.SetCustomSpeed(uint32(baud))
	}
	return port.SetAttr2(serial.TCSANOW, attrs)
}

// openDevPTY opens a fresh pseudo-terminal pair for exercising the stack
// without real radio hardware: the "pty" end is wired into the node as a
// wireLink, the "tty" end is returned for a test harness to drive.
func openDevPTY(index uint8) (link *wireLink, peer *os.File, err error) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open pty: %w", err)
	}
	return &wireLink{index: index, reader: ptmx, writer: ptmx, closer: ptmx, keyer: noopKeyer{}}, tty, nil
}

func (l *wireLink) Close() error {
	if l.keyer != nil {
		l.keyer.Close()
	}
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// realtimePlatform implements dlsm.Platform by writing to the wireLink
// registered under each serial index and reading the wall clock.
type realtimePlatform struct {
	links map[uint8]*wireLink
}

func newRealtimePlatform(links []*wireLink) *realtimePlatform {
	p := &realtimePlatform{links: make(map[uint8]*wireLink, len(links))}
	for _, l := range links {
		p.links[l.index] = l
	}
	return p
}

func (p *realtimePlatform) Now() clock.Instant { return clock.Now() }

func (p *realtimePlatform) WriteSerial(serialIndex uint8, data []byte) error {
	l, ok := p.links[serialIndex]
	if !ok {
		return fmt.Errorf("no serial link registered for index %d", serialIndex)
	}
	if err := l.keyer.Key(true); err != nil {
		return fmt.Errorf("key ptt: %w", err)
	}
	defer l.keyer.Key(false)
	_, err := l.writer.Write(data)
	return err
}
