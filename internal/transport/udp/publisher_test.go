// SPDX-License-Identifier: MIT
package udp

import (
	"net"
	"testing"
	"time"

	"github.com/google/uuid"

	"signalmon/internal/directive"
	"signalmon/internal/event"
)

func listen(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func receive(t *testing.T, conn *net.UDPConn) Packet {
	t.Helper()
	buf := make([]byte, 65536)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP() error = %v", err)
	}
	pkt, err := Decode(buf[:n])
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return pkt
}

func newPublisher(t *testing.T, maxPacket int) (*UDPPublisher, *net.UDPConn) {
	t.Helper()
	conn := listen(t)
	sender, err := NewUDPSender(conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewUDPSender() error = %v", err)
	}
	p, err := NewUDPPublisher(sender, maxPacket)
	if err != nil {
		t.Fatalf("NewUDPPublisher() error = %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p, conn
}

func TestPublisherPacketLayout(t *testing.T) {
	p, conn := newPublisher(t, 0)

	before := time.Now()
	src := uuid.New()
	err := p.Send(event.Batch{Source: src, Channel: 3, X: []float64{0, 0.5}, Y: []float64{1.5, -2}})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	pkt := receive(t, conn)
	if pkt.Sequence != 1 || pkt.Channel != 3 {
		t.Errorf("header = seq %d ch %d, want seq 1 ch 3", pkt.Sequence, pkt.Channel)
	}
	if pkt.Source != SourceTag(src) {
		t.Errorf("source = %x, want %x", pkt.Source, src[:4])
	}
	if pkt.Timestamp.Before(before.Add(-time.Second)) {
		t.Errorf("timestamp = %v, too old", pkt.Timestamp)
	}
	if len(pkt.X) != 2 || pkt.X[1] != 0.5 || pkt.Y[0] != 1.5 || pkt.Y[1] != -2 {
		t.Errorf("points = %v %v", pkt.X, pkt.Y)
	}
}

func TestPublisherSplitsLargeBatches(t *testing.T) {
	// Room for three points per datagram.
	p, conn := newPublisher(t, HeaderSize+3*PointSize)

	xs := []float64{0, 1, 2, 3, 4, 5, 6}
	if err := p.Send(event.Batch{Channel: 0, X: xs, Y: xs}); err != nil {
		t.Fatal(err)
	}

	wantCounts := []int{3, 3, 1}
	var next float32
	for i, want := range wantCounts {
		pkt := receive(t, conn)
		if pkt.Sequence != uint32(i+1) {
			t.Errorf("packet %d sequence = %d", i, pkt.Sequence)
		}
		if len(pkt.Y) != want {
			t.Fatalf("packet %d holds %d points, want %d", i, len(pkt.Y), want)
		}
		for _, y := range pkt.Y {
			if y != next {
				t.Errorf("point %v out of order, want %v", y, next)
			}
			next++
		}
	}
}

func TestPublisherSeparatesSources(t *testing.T) {
	p, conn := newPublisher(t, 0)

	samples, spectrum := uuid.New(), uuid.New()
	for _, src := range []uuid.UUID{samples, spectrum} {
		if err := p.Send(event.Batch{Source: src, Channel: 0, X: []float64{1}, Y: []float64{2}}); err != nil {
			t.Fatal(err)
		}
	}

	first, second := receive(t, conn), receive(t, conn)
	if first.Channel != second.Channel {
		t.Fatalf("channels = %d %d, want equal", first.Channel, second.Channel)
	}
	if first.Source != SourceTag(samples) || second.Source != SourceTag(spectrum) {
		t.Errorf("sources = %x %x, want %x %x", first.Source, second.Source, samples[:4], spectrum[:4])
	}
}

func TestPublisherIgnoresOtherEvents(t *testing.T) {
	p, conn := newPublisher(t, 0)

	cmd, _ := directive.Interpret("%CLEAR")
	for _, ev := range []event.Event{
		event.Control{Command: cmd},
		event.ChannelCreated{},
		event.Completed{},
		event.Batch{},
	} {
		if err := p.Send(ev); err != nil {
			t.Errorf("Send(%T) error = %v", ev, err)
		}
	}
	if err := p.Send(event.Batch{X: []float64{1}, Y: []float64{2}}); err != nil {
		t.Fatal(err)
	}
	if pkt := receive(t, conn); pkt.Sequence != 1 {
		t.Errorf("first packet sequence = %d, want 1", pkt.Sequence)
	}
}

func TestPublisherValidation(t *testing.T) {
	if _, err := NewUDPPublisher(nil, 0); err == nil {
		t.Error("nil sender accepted")
	}

	p, _ := newPublisher(t, 0)
	if err := p.Send(event.Batch{Channel: 70000, X: []float64{1}, Y: []float64{1}}); err == nil {
		t.Error("channel beyond uint16 accepted")
	}
}

func TestSenderClosed(t *testing.T) {
	conn := listen(t)
	s, err := NewUDPSender(conn.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Send([]byte{1}); err != ErrSenderClosed {
		t.Errorf("Send() after Close = %v, want ErrSenderClosed", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	if _, err := Decode(make([]byte, 10)); err == nil {
		t.Error("short packet accepted")
	}
	b := make([]byte, HeaderSize+PointSize)
	b[19] = 2
	if _, err := Decode(b); err == nil {
		t.Error("packet with wrong count accepted")
	}
}
