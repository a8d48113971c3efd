package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vk7xyz/ax25d/dlsm"
	"github.com/vk7xyz/ax25d/pkg/kiss"
)

// openLinks opens every configured serial port, or a single dev pty when
// devPTY is set. On any failure it closes whatever it already opened.
func openLinks(cfg Config, devPTY bool, logger *log.Logger) ([]*wireLink, error) {
	if devPTY {
		link, peer, err := openDevPTY(0)
		if err != nil {
			return nil, err
		}
		logger.Info("dev pty ready", "drive-from", peer.Name())
		return []*wireLink{link}, nil
	}

	if len(cfg.Ports) == 0 {
		return nil, errors.New("no ports configured; pass --dev-pty or add a ports: entry")
	}

	links := make([]*wireLink, 0, len(cfg.Ports))
	for i, pc := range cfg.Ports {
		link, err := openSerialLink(uint8(i), pc.Device, pc.Baud, pc.PTT)
		if err != nil {
			for _, l := range links {
				l.Close()
			}
			return nil, fmt.Errorf("port %d: %w", i, err)
		}
		links = append(links, link)
	}
	return links, nil
}

// serialByte is one byte read from a link, tagged with the serial index it
// arrived on so the reactor can route it to the right KISS decoder.
type serialByte struct {
	index uint8
	b     byte
}

// readLink pumps bytes from l into out until ctx is cancelled or the link
// errors, one reader goroutine per serial port as required by the single-
// reactor-goroutine design: the blocking Read happens here, never on the
// goroutine that touches DLSM state.
func readLink(ctx context.Context, l *wireLink, out chan<- serialByte, logger *log.Logger) {
	buf := make([]byte, 256)
	for {
		n, err := l.reader.Read(buf)
		for i := 0; i < n; i++ {
			select {
			case out <- serialByte{index: l.index, b: buf[i]}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if ctx.Err() == nil && err != io.EOF {
				logger.Warn("serial read failed", "port", l.index, "err", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// runReactor is the node's single-threaded event loop: it multiplexes the
// byte stream from every serial link against a ticker driving Core.Tick,
// decoding each link's KISS framing independently before any byte touches
// the DLSM.
func runReactor(ctx context.Context, core *dlsm.Core, links []*wireLink, logger *log.Logger) {
	bytes := make(chan serialByte, 4096)
	decoders := make(map[uint8]*kiss.Decoder, len(links))
	for _, l := range links {
		decoders[l.index] = kiss.NewDecoder(l.index, 4096)
		go readLink(ctx, l, bytes, logger)
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return

		case sb := <-bytes:
			dec := decoders[sb.index]
			frame, ok := dec.DecodeByte(sb.b)
			if ok {
				core.IngressFrame(frame.Port, frame.Payload, 8)
			}

		case <-ticker.C:
			core.Tick()
		}
	}
}
