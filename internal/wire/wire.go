// Package wire implements the framed binary protocol spoken on the UART link
// between the host bridge and the motor controller.
//
// Frame layout, identical in both directions:
//
//	START1 START2 MSG_ID LEN_HI LEN_LO PAYLOAD... CHECKSUM
//
// START1/START2 are 0xAA 0x55. The checksum is the modular sum of MSG_ID,
// both length bytes and every payload byte, truncated to 8 bits. Multi-byte
// payload fields are big-endian.
package wire

import (
	"errors"
	"fmt"
)

// Start-of-frame marker bytes.
const (
	Start1 = 0xAA
	Start2 = 0x55
)

// Message IDs. Velocity and the e-stop pair travel host to controller;
// telemetry travels controller to host.
const (
	MsgVelocity      byte = 0x01
	MsgTelemetry     byte = 0x02
	MsgEmergencyStop byte = 0x03
	MsgClearEstop    byte = 0x04
)

const (
	headerLen = 5 // two start bytes, msg id, two length bytes

	// MaxPayloadLen bounds payloads accepted by Encode.
	MaxPayloadLen = 256

	// maxBuffered bounds decoder memory when the stream is garbage.
	maxBuffered = 4096
)

var (
	// ErrPayloadTooLarge is returned by Encode for oversized payloads.
	ErrPayloadTooLarge = errors.New("wire: payload exceeds maximum frame size")

	// ErrWrongMessage is returned when decoding a payload from a frame
	// carrying a different message ID.
	ErrWrongMessage = errors.New("wire: unexpected message id")
)

// Frame is one decoded protocol frame. Instances are transient: built per
// send, discarded per parse.
type Frame struct {
	MsgID   byte
	Payload []byte
}

// expectedPayloadLen maps each message ID to its fixed payload size. The
// decoder rejects frames whose declared length disagrees.
var expectedPayloadLen = map[byte]int{
	MsgVelocity:      VelocityPayloadLen,
	MsgTelemetry:     TelemetryPayloadLen,
	MsgEmergencyStop: EmergencyStopPayloadLen,
	MsgClearEstop:    ClearEstopPayloadLen,
}

// Checksum computes the 8-bit modular checksum over msg id, length bytes and
// payload.
func Checksum(msgID byte, payload []byte) byte {
	sum := uint(msgID)
	sum += uint(len(payload)>>8) & 0xFF
	sum += uint(len(payload)) & 0xFF
	for _, b := range payload {
		sum += uint(b)
	}
	return byte(sum)
}

// Encode builds the on-wire bytes for one frame.
func Encode(msgID byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	buf := make([]byte, 0, headerLen+len(payload)+1)
	buf = append(buf, Start1, Start2, msgID, byte(len(payload)>>8), byte(len(payload)))
	buf = append(buf, payload...)
	buf = append(buf, Checksum(msgID, payload))
	return buf, nil
}

// Decoder is a resynchronising frame scanner over a raw byte stream. Feed it
// chunks of arbitrary size; Next returns complete, checksum-verified frames.
//
// A frame whose declared length exceeds the buffered bytes is held until more
// bytes arrive. A frame that fails its checksum is abandoned by advancing a
// single byte and rescanning, so one corrupt byte never desynchronises the
// frames behind it.
type Decoder struct {
	buf       []byte
	dropped   int
	badFrames int
}

// Feed appends received bytes to the scan buffer.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
	if len(d.buf) > maxBuffered {
		n := len(d.buf) - maxBuffered
		d.buf = d.buf[n:]
		d.dropped += n
	}
}

// Next scans for the next valid frame. It returns ok=false when the buffer
// holds no complete frame yet; call Feed and try again.
func (d *Decoder) Next() (Frame, bool) {
	for {
		d.align()
		if len(d.buf) < headerLen {
			return Frame{}, false
		}

		msgID := d.buf[2]
		length := int(d.buf[3])<<8 | int(d.buf[4])
		want, known := expectedPayloadLen[msgID]
		if !known || length != want {
			// An unknown id or a length that disagrees with the id means a
			// corrupt header. Never wait on it: a bogus length could imply
			// bytes that will never arrive. Advance one byte and rescan.
			d.skip(1)
			d.badFrames++
			continue
		}

		total := headerLen + length + 1
		if len(d.buf) < total {
			// Short frame: hold until more bytes arrive.
			return Frame{}, false
		}

		payload := d.buf[headerLen : headerLen+length]
		if d.buf[total-1] != Checksum(msgID, payload) {
			d.skip(1)
			d.badFrames++
			continue
		}

		f := Frame{MsgID: msgID, Payload: append([]byte(nil), payload...)}
		d.consume(total)
		return f, true
	}
}

// Stats reports how many bytes were discarded during resynchronisation and
// how many frames were rejected. Used for link diagnostics.
func (d *Decoder) Stats() (droppedBytes, badFrames int) {
	return d.dropped, d.badFrames
}

// align discards leading bytes until the buffer starts with the frame marker
// or could still grow into one.
func (d *Decoder) align() {
	for len(d.buf) >= 2 && !(d.buf[0] == Start1 && d.buf[1] == Start2) {
		d.skip(1)
	}
	if len(d.buf) == 1 && d.buf[0] != Start1 {
		d.skip(1)
	}
}

func (d *Decoder) skip(n int) {
	d.buf = d.buf[n:]
	d.dropped += n
}

func (d *Decoder) consume(n int) {
	if n == len(d.buf) {
		// Release the backing array between bursts.
		d.buf = nil
		return
	}
	d.buf = d.buf[n:]
}
