package entities

import (
	"bytes"
	"errors"
	"testing"
)

func TestSensorPacketRoundTrip(t *testing.T) {
	original := &SensorPacket{
		SensorID:    1001,
		TimestampUS: 1724800000000000,
		DataType:    DataTypeSensorVector,
		Seq:         99,
		Payload:     bytes.Repeat([]byte{0xAB}, 40),
	}

	decoded, err := DecodeSensorPacket(original.Encode())
	if err != nil {
		t.Fatalf("DecodeSensorPacket failed: %v", err)
	}

	if decoded.SensorID != original.SensorID {
		t.Errorf("sensor id: got %d, want %d", decoded.SensorID, original.SensorID)
	}
	if decoded.TimestampUS != original.TimestampUS {
		t.Errorf("timestamp: got %d, want %d", decoded.TimestampUS, original.TimestampUS)
	}
	if decoded.DataType != original.DataType {
		t.Errorf("data type: got %d, want %d", decoded.DataType, original.DataType)
	}
	if decoded.Seq != original.Seq {
		t.Errorf("seq: got %d, want %d", decoded.Seq, original.Seq)
	}
	if !bytes.Equal(decoded.Payload, original.Payload) {
		t.Errorf("payload mismatch")
	}
}

func TestDecodeSensorPacketIgnoresTrailingBytes(t *testing.T) {
	p := &SensorPacket{SensorID: 7, DataType: DataTypeAudio, Payload: []byte{1, 2, 3, 4}}
	raw := append(p.Encode(), 0xFF, 0xFF, 0xFF)

	decoded, err := DecodeSensorPacket(raw)
	if err != nil {
		t.Fatalf("DecodeSensorPacket failed: %v", err)
	}
	if len(decoded.Payload) != 4 {
		t.Errorf("payload length: got %d, want 4", len(decoded.Payload))
	}
}

func TestDecodeSensorPacketTruncated(t *testing.T) {
	_, err := DecodeSensorPacket(make([]byte, SensorHeaderSize-1))
	if !errors.Is(err, ErrSensorHeaderTooShort) {
		t.Errorf("expected ErrSensorHeaderTooShort, got %v", err)
	}

	p := &SensorPacket{SensorID: 1, Payload: make([]byte, 10)}
	raw := p.Encode()
	_, err = DecodeSensorPacket(raw[:len(raw)-3])
	if !errors.Is(err, ErrSensorPayloadTruncated) {
		t.Errorf("expected ErrSensorPayloadTruncated, got %v", err)
	}
}

func TestSensorVectorRoundTrip(t *testing.T) {
	var v SensorVector
	v[ChannelBatteryLow] = 0.2
	v[ChannelPeopleCount] = 0.6
	v[ChannelFallEvent] = 1.0
	v[ChannelMotionEnergy] = 0.85

	decoded, err := DecodeSensorVector(v.Encode())
	if err != nil {
		t.Fatalf("DecodeSensorVector failed: %v", err)
	}
	if decoded != v {
		t.Errorf("vector mismatch: got %v, want %v", decoded, v)
	}
}

func TestDecodeSensorVectorWrongSize(t *testing.T) {
	_, err := DecodeSensorVector(make([]byte, SensorVectorBytes-4))
	if !errors.Is(err, ErrSensorVectorPayloadSize) {
		t.Errorf("expected ErrSensorVectorPayloadSize, got %v", err)
	}
}
