package main

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
	"github.com/xylo04/goHamlib"
)

// Keyer keys and unkeys a transmitter around an outbound frame. It is the
// pure-Go analogue of the teacher's cgo PTT paths: a GPIO line toggled
// through the kernel's character-device ABI, or a CAT-control command sent
// to a radio over Hamlib's rig abstraction.
type Keyer interface {
	Key(on bool) error
	Close() error
}

// noopKeyer is used for links with no ptt: entry in config — the node keys
// nothing and relies on the TNC or radio's own VOX/DCD.
type noopKeyer struct{}

func (noopKeyer) Key(bool) error { return nil }
func (noopKeyer) Close() error   { return nil }

// gpioKeyer keys a transmitter by driving a GPIO output line high for the
// duration of a transmission, the gpiod-chardev equivalent of the teacher's
// libgpiod-backed gpiod_probe/gpiod_set.
type gpioKeyer struct {
	line *gpiocdev.Line
}

func newGPIOKeyer(chip string, offset int) (*gpioKeyer, error) {
	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("ax25d-ptt"))
	if err != nil {
		return nil, fmt.Errorf("request gpio line %s:%d: %w", chip, offset, err)
	}
	return &gpioKeyer{line: line}, nil
}

func (k *gpioKeyer) Key(on bool) error {
	v := 0
	if on {
		v = 1
	}
	return k.line.SetValue(v)
}

func (k *gpioKeyer) Close() error { return k.line.Close() }

// hamlibKeyer keys a transmitter through a radio's CAT interface via
// Hamlib, the pure-Go analogue of the teacher's rig_init/rig_open/
// rig_set_ptt cgo block in ptt.go for rigs with no dedicated PTT line.
type hamlibKeyer struct {
	rig *goHamlib.Rig
}

func newHamlibKeyer(model int, device string) (*hamlibKeyer, error) {
	rig := goHamlib.NewRig(goHamlib.RigModel(model))
	if err := rig.SetConf("rig_pathname", device); err != nil {
		return nil, fmt.Errorf("configure rig path %s: %w", device, err)
	}
	if err := rig.Open(); err != nil {
		return nil, fmt.Errorf("open rig model %d on %s: %w", model, device, err)
	}
	return &hamlibKeyer{rig: rig}, nil
}

func (k *hamlibKeyer) Key(on bool) error {
	state := goHamlib.RIG_PTT_OFF
	if on {
		state = goHamlib.RIG_PTT_ON
	}
	return k.rig.SetPTT(goHamlib.RIG_VFO_CURR, state)
}

func (k *hamlibKeyer) Close() error { return k.rig.Close() }

// newKeyer builds the Keyer a PTTConfig describes, or a noopKeyer when pc
// is nil. GPIO and Hamlib keying are mutually exclusive per port: GPIO
// takes precedence when both are set, since a directly wired PTT line is
// cheaper and faster than a CAT round trip.
func newKeyer(pc *PTTConfig) (Keyer, error) {
	if pc == nil {
		return noopKeyer{}, nil
	}
	if pc.GPIOChip != "" {
		return newGPIOKeyer(pc.GPIOChip, pc.GPIOLine)
	}
	if pc.HamlibModel != 0 {
		return newHamlibKeyer(pc.HamlibModel, pc.HamlibDevice)
	}
	return noopKeyer{}, nil
}
