package entities

import (
	"encoding/binary"
	"errors"
	"math"
)

// Sensor envelope wire format (little-endian, 32-byte fixed header):
//
//	[ sensor_id: u32 ][ timestamp_us: u64 ][ data_type: u8 ][ 3 reserved ]
//	[ payload_len: u16 ][ 2 reserved ][ seq: u64 ][ 4 reserved ]
//	[ payload: payload_len bytes ]
//
// The same envelope is carried by every sensor transport (UDP datagram,
// length-prefixed TCP stream, MQTT topic body).
const SensorHeaderSize = 32

// Sensor payload kinds.
const (
	DataTypeAudio        uint8 = 1 // 16-bit LE PCM audio
	DataTypeSensorVector uint8 = 2 // 10 × f32 LE channel vector
)

// Decode errors for the sensor envelope.
var (
	ErrSensorHeaderTooShort    = errors.New("sensor packet shorter than header")
	ErrSensorPayloadTruncated  = errors.New("sensor payload shorter than header payload_len")
	ErrSensorVectorPayloadSize = errors.New("sensor vector payload shorter than 10 channels")
)

// SensorPacket is a decoded sensor envelope, identical regardless of the
// transport it arrived on.
type SensorPacket struct {
	SensorID    uint32
	TimestampUS uint64
	DataType    uint8
	Seq         uint64
	Payload     []byte
}

// DecodeSensorPacket parses a sensor envelope from raw bytes.
// Bytes beyond header+payload_len are ignored (transport padding).
func DecodeSensorPacket(buf []byte) (*SensorPacket, error) {
	if len(buf) < SensorHeaderSize {
		return nil, ErrSensorHeaderTooShort
	}

	payloadLen := int(binary.LittleEndian.Uint16(buf[16:18]))
	if len(buf) < SensorHeaderSize+payloadLen {
		return nil, ErrSensorPayloadTruncated
	}

	return &SensorPacket{
		SensorID:    binary.LittleEndian.Uint32(buf[0:4]),
		TimestampUS: binary.LittleEndian.Uint64(buf[4:12]),
		DataType:    buf[12],
		Seq:         binary.LittleEndian.Uint64(buf[20:28]),
		Payload:     append([]byte(nil), buf[SensorHeaderSize:SensorHeaderSize+payloadLen]...),
	}, nil
}

// Encode serializes the envelope. Reserved header bytes are zero.
func (p *SensorPacket) Encode() []byte {
	buf := make([]byte, SensorHeaderSize+len(p.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], p.SensorID)
	binary.LittleEndian.PutUint64(buf[4:12], p.TimestampUS)
	buf[12] = p.DataType
	binary.LittleEndian.PutUint16(buf[16:18], uint16(len(p.Payload)))
	binary.LittleEndian.PutUint64(buf[20:28], p.Seq)
	copy(buf[SensorHeaderSize:], p.Payload)
	return buf
}

// SensorVectorLen is the number of channels in a sensor vector payload.
const SensorVectorLen = 10

// SensorVectorBytes is the byte size of a sensor vector payload.
const SensorVectorBytes = SensorVectorLen * 4

// Channel indexes of the sensor vector, in wire order.
const (
	ChannelBatteryLow = iota
	ChannelPeopleCount
	ChannelKnownFace
	ChannelUnknownFace
	ChannelFallEvent
	ChannelLifted
	ChannelIdleTime
	ChannelSoundEnergy
	ChannelVoiceRate
	ChannelMotionEnergy
)

// ChannelNames maps channel indexes to their wire-order names.
var ChannelNames = [SensorVectorLen]string{
	"battery_low", "people_count", "known_face", "unknown_face", "fall_event",
	"lifted", "idle_time", "sound_energy", "voice_rate", "motion_energy",
}

// SensorVector is the 10-channel perception snapshot a device reports.
// Each channel is a normalized intensity in [0, 1] by convention.
type SensorVector [SensorVectorLen]float32

// DecodeSensorVector parses a vector from a SENSOR_VECTOR payload.
func DecodeSensorVector(payload []byte) (SensorVector, error) {
	var v SensorVector
	if len(payload) < SensorVectorBytes {
		return v, ErrSensorVectorPayloadSize
	}
	for i := range v {
		bits := binary.LittleEndian.Uint32(payload[i*4 : i*4+4])
		v[i] = math.Float32frombits(bits)
	}
	return v, nil
}

// Encode serializes the vector as a SENSOR_VECTOR payload.
func (v SensorVector) Encode() []byte {
	buf := make([]byte, SensorVectorBytes)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(f))
	}
	return buf
}
