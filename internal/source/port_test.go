// SPDX-License-Identifier: MIT
package source

import (
	"errors"
	"io"
	"testing"
	"time"

	"go.bug.st/serial"

	"signalmon/internal/config"
)

func TestSerialMode(t *testing.T) {
	tests := []struct {
		parity   string
		stopBits string
		wantP    serial.Parity
		wantS    serial.StopBits
	}{
		{"none", "1", serial.NoParity, serial.OneStopBit},
		{"ODD", "2", serial.OddParity, serial.TwoStopBits},
		{"even", "1.5", serial.EvenParity, serial.OnePointFiveStopBits},
		{"mark", "", serial.MarkParity, serial.OneStopBit},
		{"space", "1", serial.SpaceParity, serial.OneStopBit},
	}

	for _, tt := range tests {
		t.Run(tt.parity+"/"+tt.stopBits, func(t *testing.T) {
			cfg := config.Default().Serial
			cfg.Parity, cfg.StopBits = tt.parity, tt.stopBits

			mode, err := serialMode(cfg)
			if err != nil {
				t.Fatalf("serialMode() error = %v", err)
			}
			if mode.Parity != tt.wantP || mode.StopBits != tt.wantS {
				t.Errorf("mode = %+v", mode)
			}
			if mode.BaudRate != 115200 || mode.DataBits != 8 {
				t.Errorf("baud/data bits = %d/%d", mode.BaudRate, mode.DataBits)
			}
		})
	}
}

func TestSerialModeRejectsUnknown(t *testing.T) {
	cfg := config.Default().Serial
	cfg.Parity = "sometimes"
	if _, err := serialMode(cfg); err == nil {
		t.Error("accepted unknown parity")
	}
}

func TestOpenSerialMissingDevice(t *testing.T) {
	cfg := config.Default().Serial
	cfg.Port = "/dev/signalmon-does-not-exist"
	_, err := OpenSerial(cfg)
	var terr *TransportError
	if !errors.As(err, &terr) || terr.Op != "open" {
		t.Errorf("OpenSerial() error = %v, want open TransportError", err)
	}
}

func TestPortInfoDescription(t *testing.T) {
	p := PortInfo{Name: "/dev/ttyACM0", USB: true, VID: "2341", PID: "0043", Product: "Uno", SerialNumber: "A1"}
	if got := p.Description(); got != "USB 2341:0043 Uno (A1)" {
		t.Errorf("Description() = %q", got)
	}
	if got := (PortInfo{Name: "/dev/ttyS0"}).Description(); got != "" {
		t.Errorf("Description() = %q, want empty", got)
	}
}

func TestPipe(t *testing.T) {
	p := NewPipe()
	_ = p.SetReadTimeout(time.Millisecond)

	buf := make([]byte, 8)
	if n, err := p.Read(buf); n != 0 || err != nil {
		t.Errorf("empty Read() = %d, %v; want timeout", n, err)
	}

	p.WriteString("abc")
	if n, _ := p.Read(buf); string(buf[:n]) != "abc" {
		t.Errorf("Read() = %q", buf[:n])
	}

	boom := errors.New("boom")
	p.Fail(boom)
	if _, err := p.Read(buf); !errors.Is(err, boom) {
		t.Errorf("Read() error = %v, want boom", err)
	}

	p.Close()
	if _, err := p.Write([]byte("x")); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Write() after Close error = %v", err)
	}
}
