// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"signalmon/internal/event"
	"signalmon/internal/log"
	"signalmon/internal/transport"
)

/*
Packet layout (BigEndian). A batch longer than one datagram allows is split
over several packets with consecutive sequence numbers. Source holds the first
four bytes of the publishing source's id so that the same channel index of two
sources (e.g. samples and their spectrum) can be told apart.

|<- 4 bytes ->|<- 4 bytes ->|<- 8 bytes ->|<- 2 bytes ->|<- 2 bytes ->|<-- N * 8 bytes -->|
+-------------+-------------+-------------+-------------+-------------+-------------------+
|  Sequence   |   Source    |  Timestamp  |   Channel   | Point count | N * (x, y) float32|
|  (uint32)   |  (4 bytes)  |  (int64 ns) |  (uint16)   |  (uint16)   |                   |
+-------------+-------------+-------------+-------------+-------------+-------------------+
*/
const (
	HeaderSize = 20
	PointSize  = 8

	// DefaultMaxPacket keeps datagrams under a typical Ethernet MTU.
	DefaultMaxPacket = 1400
)

// Packet is one decoded datagram.
type Packet struct {
	Sequence  uint32
	Source    [4]byte
	Timestamp time.Time
	Channel   uint16
	X, Y      []float32
}

// UDPPublisher packs every Batch event into datagrams and hands them to a
// UDPSender. Other events are ignored.
type UDPPublisher struct {
	sender    *UDPSender
	maxPoints int
	log       *log.Logger

	mu           sync.Mutex // guards everything below
	sequenceNum  uint32
	sentBytes    uint64
	packetBuffer *bytes.Buffer
}

// NewUDPPublisher returns a publisher writing to sender. maxPacket bounds the
// datagram size, DefaultMaxPacket when non-positive.
func NewUDPPublisher(sender *UDPSender, maxPacket int) (*UDPPublisher, error) {
	if sender == nil {
		return nil, errors.New("udp publisher: sender cannot be nil")
	}
	if maxPacket <= 0 {
		maxPacket = DefaultMaxPacket
	}
	if maxPacket < HeaderSize+PointSize {
		return nil, fmt.Errorf("udp publisher: max packet %d cannot hold a single point", maxPacket)
	}
	return &UDPPublisher{
		sender:       sender,
		maxPoints:    min((maxPacket-HeaderSize)/PointSize, math.MaxUint16),
		log:          log.New("transport").With("udp"),
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Send publishes ev when it is a Batch.
func (p *UDPPublisher) Send(ev event.Event) error {
	b, ok := ev.(event.Batch)
	if !ok || b.Len() == 0 {
		return nil
	}
	if b.Channel < 0 || b.Channel > math.MaxUint16 {
		return fmt.Errorf("udp publisher: channel %d does not fit the packet header", b.Channel)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UnixNano()
	for start := 0; start < b.Len(); start += p.maxPoints {
		end := min(start+p.maxPoints, b.Len())
		p.sequenceNum++
		p.pack(now, SourceTag(b.Source), uint16(b.Channel), b.X[start:end], b.Y[start:end])
		if err := p.sender.Send(p.packetBuffer.Bytes()); err != nil {
			return err
		}
		p.sentBytes += uint64(p.packetBuffer.Len())
		p.log.Debugf("sent packet %d (%d bytes)", p.sequenceNum, p.packetBuffer.Len())
	}
	return nil
}

// SourceTag returns the source discriminator carried in the packet header.
func SourceTag(id uuid.UUID) [4]byte {
	return [4]byte(id[:4])
}

func (p *UDPPublisher) pack(ts int64, src [4]byte, channel uint16, xs, ys []float64) {
	p.packetBuffer.Reset()
	var hdr [HeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:], p.sequenceNum)
	copy(hdr[4:8], src[:])
	binary.BigEndian.PutUint64(hdr[8:], uint64(ts))
	binary.BigEndian.PutUint16(hdr[16:], channel)
	binary.BigEndian.PutUint16(hdr[18:], uint16(len(ys)))
	p.packetBuffer.Write(hdr[:])

	var pt [PointSize]byte
	for i := range ys {
		binary.BigEndian.PutUint32(pt[0:], math.Float32bits(float32(xs[i])))
		binary.BigEndian.PutUint32(pt[4:], math.Float32bits(float32(ys[i])))
		p.packetBuffer.Write(pt[:])
	}
}

// Close closes the sender.
func (p *UDPPublisher) Close() error {
	p.mu.Lock()
	seq, sent := p.sequenceNum, p.sentBytes
	p.mu.Unlock()
	p.log.Infof("%d packets, %s sent to %s", seq, humanize.Bytes(sent), p.sender.Target())
	return p.sender.Close()
}

// Decode parses a datagram produced by UDPPublisher.
func Decode(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, fmt.Errorf("packet of %d bytes is shorter than the header", len(b))
	}
	n := int(binary.BigEndian.Uint16(b[18:]))
	if len(b) != HeaderSize+n*PointSize {
		return Packet{}, fmt.Errorf("packet of %d bytes does not hold %d points", len(b), n)
	}
	pkt := Packet{
		Sequence:  binary.BigEndian.Uint32(b[0:]),
		Source:    [4]byte(b[4:8]),
		Timestamp: time.Unix(0, int64(binary.BigEndian.Uint64(b[8:]))),
		Channel:   binary.BigEndian.Uint16(b[16:]),
		X:         make([]float32, n),
		Y:         make([]float32, n),
	}
	for i := range n {
		off := HeaderSize + i*PointSize
		pkt.X[i] = math.Float32frombits(binary.BigEndian.Uint32(b[off:]))
		pkt.Y[i] = math.Float32frombits(binary.BigEndian.Uint32(b[off+4:]))
	}
	return pkt, nil
}

// Ensure UDPPublisher satisfies the transport interface at compile time.
var _ transport.Transport = (*UDPPublisher)(nil)
