// SPDX-License-Identifier: MIT
package source

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"signalmon/internal/config"
)

// Port is the byte link a Serial source reads. Read must return within the
// configured timeout, with n == 0 and a nil error when nothing arrived.
type Port interface {
	io.ReadCloser
	SetReadTimeout(t time.Duration) error
}

// OpenSerial opens the serial device described by cfg.
func OpenSerial(cfg config.SerialConfig) (Port, error) {
	mode, err := serialMode(cfg)
	if err != nil {
		return nil, &TransportError{Source: cfg.Port, Op: "open", Err: err}
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, &TransportError{Source: cfg.Port, Op: "open", Err: err}
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, &TransportError{Source: cfg.Port, Op: "open", Err: err}
	}
	return port, nil
}

func serialMode(cfg config.SerialConfig) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}

	switch strings.ToLower(cfg.Parity) {
	case "", "none":
		mode.Parity = serial.NoParity
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	case "mark":
		mode.Parity = serial.MarkParity
	case "space":
		mode.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("unknown parity %q", cfg.Parity)
	}

	switch cfg.StopBits {
	case "", "1":
		mode.StopBits = serial.OneStopBit
	case "1.5":
		mode.StopBits = serial.OnePointFiveStopBits
	case "2":
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unknown stop bits %q", cfg.StopBits)
	}
	return mode, nil
}

// PortInfo describes a serial port found on the system.
type PortInfo struct {
	Name         string
	USB          bool
	VID, PID     string
	SerialNumber string
	Product      string
}

// Description renders the USB details, or "" for other ports.
func (p PortInfo) Description() string {
	if !p.USB {
		return ""
	}
	desc := fmt.Sprintf("USB %s:%s", p.VID, p.PID)
	if p.Product != "" {
		desc += " " + p.Product
	}
	if p.SerialNumber != "" {
		desc += " (" + p.SerialNumber + ")"
	}
	return desc
}

// ListPorts enumerates serial ports. It falls back to bare names when the
// platform offers no USB details.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		ports := make([]PortInfo, 0, len(details))
		for _, d := range details {
			ports = append(ports, PortInfo{
				Name:         d.Name,
				USB:          d.IsUSB,
				VID:          d.VID,
				PID:          d.PID,
				SerialNumber: d.SerialNumber,
				Product:      d.Product,
			})
		}
		return ports, nil
	}

	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("listing serial ports: %w", err)
	}
	ports := make([]PortInfo, len(names))
	for i, name := range names {
		ports[i] = PortInfo{Name: name}
	}
	return ports, nil
}

// replayPort serves a captured stream from a file. Reads never block, and the
// end of the file ends the source normally.
type replayPort struct {
	f *os.File
}

// OpenReplay opens a file holding a captured instrument stream.
func OpenReplay(path string) (Port, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &TransportError{Source: path, Op: "open", Err: err}
	}
	return &replayPort{f: f}, nil
}

func (p *replayPort) Read(b []byte) (int, error)         { return p.f.Read(b) }
func (p *replayPort) Close() error                       { return p.f.Close() }
func (p *replayPort) SetReadTimeout(time.Duration) error { return nil }
