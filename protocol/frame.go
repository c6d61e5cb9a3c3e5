// Package protocol defines the uplink wire contract between the tank node
// and the network-server decoders.
//
// A level frame is exactly two bytes: a big-endian unsigned 16-bit integer
// equal to round(percent * 100), so 0x2710 (10000) is 100.00% and 0x0000 is
// 0.00%. Server-side decoders hard-code this layout; it must not change
// without a version marker.
package protocol

import (
	"encoding/binary"
	"math"

	"github.com/glenmo/lorawan-water-tank-monitor/errcode"
	"github.com/glenmo/lorawan-water-tank-monitor/x/mathx"
)

const (
	// FPort is the logical LoRaWAN port the level frame is sent on.
	FPort uint8 = 2

	// FrameLen is the fixed uplink payload length.
	FrameLen = 2

	// MaxScaled is the largest encodable scaled value (100.00%).
	MaxScaled uint16 = 10000
)

// Frame is one encoded tank-level payload.
type Frame [FrameLen]byte

// Bytes returns the frame as a slice for submission to the radio.
func (f Frame) Bytes() []byte { return f[:] }

// Scaled returns the raw big-endian value (percent * 100).
func (f Frame) Scaled() uint16 { return binary.BigEndian.Uint16(f[:]) }

// EncodeLevel converts a percentage to its wire frame. The input is clamped
// to [0,100] before scaling, so the scaled value never exceeds MaxScaled.
// NaN is a caller contract violation: readings are averages of bounded ADC
// counts and cannot be NaN, so it panics rather than encoding garbage.
func EncodeLevel(percent float64) Frame {
	if math.IsNaN(percent) {
		panic("protocol: NaN level")
	}
	pct := mathx.Clamp(percent, 0, 100)
	scaled := uint16(math.Round(pct * 100))
	var f Frame
	binary.BigEndian.PutUint16(f[:], scaled)
	return f
}

// DecodeLevel recovers the percentage from a received payload. It is the
// consumer half of the contract: payloads whose length differs from
// FrameLen are rejected, as are scaled values above MaxScaled.
func DecodeLevel(p []byte) (float64, error) {
	if len(p) != FrameLen {
		return 0, errcode.BadFrame
	}
	scaled := binary.BigEndian.Uint16(p)
	if scaled > MaxScaled {
		return 0, errcode.BadFrame
	}
	return float64(scaled) / 100, nil
}
