package entities

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Device session packet wire format (little-endian):
//
//	[ seq: u16 ][ type: u8 ][ flags: u8 ][ payload: up to MaxPayload bytes ]
//
// Audio payloads are raw 16-bit LE PCM, 16 kHz, mono. Control payloads
// carry the command code in their first byte.
const (
	// PacketHeaderSize is the fixed header length of a device packet.
	PacketHeaderSize = 4

	// MaxPayload keeps a full packet under a typical 1500-byte path MTU.
	MaxPayload = 1400
)

// PacketType identifies the traffic class of a device packet.
type PacketType uint8

const (
	PacketAudioUp   PacketType = 0x01 // device → server microphone PCM
	PacketAudioDown PacketType = 0x02 // server → device playback PCM
	PacketControl   PacketType = 0x03 // bidirectional control messages
	PacketHeartbeat PacketType = 0x04 // bidirectional liveness / RTT probe
)

// String returns the string representation of the packet type.
func (t PacketType) String() string {
	switch t {
	case PacketAudioUp:
		return "audio_up"
	case PacketAudioDown:
		return "audio_down"
	case PacketControl:
		return "control"
	case PacketHeartbeat:
		return "heartbeat"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(t))
	}
}

// Packet flags (bitfield in header byte 3). Advisory only; correctness
// never depends on them.
const (
	FlagStart  uint8 = 0x01
	FlagEnd    uint8 = 0x02
	FlagUrgent uint8 = 0x04
)

// ControlCommand is the first payload byte of a control packet.
type ControlCommand uint8

const (
	CmdSessionStart ControlCommand = 0x01 // device → server: wake word, begin session
	CmdSessionEnd   ControlCommand = 0x02 // device → server: user stopped speaking
	CmdStreamStart  ControlCommand = 0x03 // server → device: response audio incoming
	CmdStreamEnd    ControlCommand = 0x04 // server → device: response audio finished
	CmdAck          ControlCommand = 0x05 // bidirectional acknowledgement
	CmdCancel       ControlCommand = 0x06 // bidirectional: abort current session
	CmdServerReady  ControlCommand = 0x07 // server → device: ready for audio
)

// String returns the string representation of the control command.
func (c ControlCommand) String() string {
	switch c {
	case CmdSessionStart:
		return "session_start"
	case CmdSessionEnd:
		return "session_end"
	case CmdStreamStart:
		return "stream_start"
	case CmdStreamEnd:
		return "stream_end"
	case CmdAck:
		return "ack"
	case CmdCancel:
		return "cancel"
	case CmdServerReady:
		return "server_ready"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(c))
	}
}

// Decode errors for the device packet envelope.
var (
	ErrPacketTooShort    = errors.New("packet shorter than header")
	ErrUnknownPacketType = errors.New("unknown packet type")
	ErrPayloadTooLarge   = errors.New("payload exceeds maximum size")
)

// Packet is a parsed device session packet.
type Packet struct {
	Seq     uint16
	Type    PacketType
	Flags   uint8
	Payload []byte
}

// DecodePacket parses a device packet from raw datagram bytes.
// The payload slice is copied so the caller may reuse its buffer.
func DecodePacket(buf []byte) (*Packet, error) {
	if len(buf) < PacketHeaderSize {
		return nil, ErrPacketTooShort
	}

	typ := PacketType(buf[2])
	switch typ {
	case PacketAudioUp, PacketAudioDown, PacketControl, PacketHeartbeat:
	default:
		return nil, ErrUnknownPacketType
	}

	payload := buf[PacketHeaderSize:]
	if len(payload) > MaxPayload {
		return nil, ErrPayloadTooLarge
	}

	return &Packet{
		Seq:     binary.LittleEndian.Uint16(buf[0:2]),
		Type:    typ,
		Flags:   buf[3],
		Payload: append([]byte(nil), payload...),
	}, nil
}

// Encode serializes the packet for transmission.
func (p *Packet) Encode() []byte {
	buf := make([]byte, PacketHeaderSize+len(p.Payload))
	binary.LittleEndian.PutUint16(buf[0:2], p.Seq)
	buf[2] = uint8(p.Type)
	buf[3] = p.Flags
	copy(buf[PacketHeaderSize:], p.Payload)
	return buf
}

// Control returns the command code of a control packet.
// The second result is false for non-control or empty-payload packets.
func (p *Packet) Control() (ControlCommand, bool) {
	if p.Type != PacketControl || len(p.Payload) == 0 {
		return 0, false
	}
	return ControlCommand(p.Payload[0]), true
}

// IsStart reports whether the START flag is set.
func (p *Packet) IsStart() bool { return p.Flags&FlagStart != 0 }

// IsEnd reports whether the END flag is set.
func (p *Packet) IsEnd() bool { return p.Flags&FlagEnd != 0 }

// IsUrgent reports whether the URGENT flag is set.
func (p *Packet) IsUrgent() bool { return p.Flags&FlagUrgent != 0 }

// NewControlPacket builds a control packet carrying a single command byte.
func NewControlPacket(seq uint16, cmd ControlCommand, flags uint8) *Packet {
	return &Packet{Seq: seq, Type: PacketControl, Flags: flags, Payload: []byte{uint8(cmd)}}
}

// NewHeartbeatEcho builds the reply to a heartbeat probe, mirroring the
// incoming sequence number so the peer can measure RTT.
func NewHeartbeatEcho(seq uint16) *Packet {
	return &Packet{Seq: seq, Type: PacketHeartbeat}
}

// NewAudioDownPacket builds a playback packet for the device.
func NewAudioDownPacket(seq uint16, flags uint8, pcm []byte) *Packet {
	return &Packet{Seq: seq, Type: PacketAudioDown, Flags: flags, Payload: pcm}
}
