package main

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/jochenvg/go-udev"
)

// watchSerialHotplug logs tty-subsystem add/remove events for the devices
// ax25d was configured to open, so an operator watching the log can see a
// TNC or radio get unplugged and replugged without polling the port. It
// never reconfigures a running link itself — §4.9 scopes device discovery
// as observability, not a dynamic-reconnect manager.
func watchSerialHotplug(ctx context.Context, devices []string, logger *log.Logger) {
	if len(devices) == 0 {
		return
	}

	u := udev.Udev{}
	mon := u.NewMonitorFromNetlink("udev")
	if err := mon.FilterAddMatchSubsystem("tty"); err != nil {
		logger.Warn("hotplug monitor unavailable", "err", err)
		return
	}

	watched := make(map[string]bool, len(devices))
	for _, d := range devices {
		watched[d] = true
	}

	events, err := mon.DeviceChan(ctx)
	if err != nil {
		logger.Warn("hotplug monitor unavailable", "err", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case dev, ok := <-events:
			if !ok {
				return
			}
			node := dev.Devnode()
			if !watched[node] {
				continue
			}
			logger.Info("serial device event", "device", node, "action", dev.Action())
		}
	}
}
