package protocol

import (
	"encoding/binary"
	"fmt"
)

// Frame is a decoded reply. Parameter excludes the command byte.
type Frame struct {
	Command       byte
	PayloadLength uint16
	Parameter     []byte
	Checksum      byte
}

// Checksum XOR-folds the big-endian length bytes, then every payload byte in
// order.
func Checksum(length uint16, payload ...[]byte) byte {
	sum := byte(length>>8) ^ byte(length)
	for _, p := range payload {
		for _, b := range p {
			sum ^= b
		}
	}
	return sum
}

// Encode builds a request frame:
//
//	0x02 | be16(1+len(param)) | cmd | param | checksum
func Encode(cmd byte, param []byte) ([]byte, error) {
	if len(param) > MaxParameter {
		return nil, &LengthError{Declared: MaxParameter, Actual: len(param)}
	}
	length := uint16(len(param) + 1)

	buf := make([]byte, 0, 3+int(length)+1)
	buf = append(buf, StartMarker)
	buf = binary.BigEndian.AppendUint16(buf, length)
	buf = append(buf, cmd)
	buf = append(buf, param...)
	buf = append(buf, Checksum(length, []byte{cmd}, param))
	return buf, nil
}

// EncodeReply builds a reply frame as a device sends it:
//
//	cmd | be16(len(param)) | param | checksum
func EncodeReply(cmd byte, param []byte) ([]byte, error) {
	if len(param) > 0xFFFF {
		return nil, &LengthError{Declared: 0xFFFF, Actual: len(param)}
	}
	length := uint16(len(param))

	buf := make([]byte, 0, ReplyHeaderSize+len(param)+1)
	buf = append(buf, cmd)
	buf = binary.BigEndian.AppendUint16(buf, length)
	buf = append(buf, param...)
	buf = append(buf, Checksum(length, param))
	return buf, nil
}

// ReplyRemaining returns how many bytes follow a reply header: the declared
// parameter length plus the checksum.
func ReplyRemaining(header []byte) int {
	if len(header) < ReplyHeaderSize {
		return 0
	}
	return int(binary.BigEndian.Uint16(header[1:3])) + 1
}

// Decode validates and splits a raw reply. The declared length must equal the
// parameter size and the checksum must match.
func Decode(raw []byte) (Frame, error) {
	if len(raw) < ReplyHeaderSize+1 {
		return Frame{}, &LengthError{Declared: ReplyHeaderSize + 1, Actual: len(raw)}
	}

	f := Frame{
		Command:       raw[0],
		PayloadLength: binary.BigEndian.Uint16(raw[1:3]),
		Parameter:     append([]byte(nil), raw[3:len(raw)-1]...),
		Checksum:      raw[len(raw)-1],
	}
	if int(f.PayloadLength) != len(f.Parameter) {
		return Frame{}, &LengthError{Declared: int(f.PayloadLength), Actual: len(f.Parameter)}
	}
	if sum := Checksum(f.PayloadLength, f.Parameter); sum != f.Checksum {
		return Frame{}, &ChecksumError{Expected: sum, Actual: f.Checksum}
	}
	return f, nil
}

func (f Frame) String() string {
	return fmt.Sprintf("Frame(cmd=0x%02X len=%d sum=0x%02X)", f.Command, f.PayloadLength, f.Checksum)
}

// Request is a decoded request frame, as seen by the device side.
type Request struct {
	Command   byte
	Parameter []byte
}

// DecodeRequest validates a request frame built by Encode.
func DecodeRequest(raw []byte) (Request, error) {
	if len(raw) < 5 {
		return Request{}, &LengthError{Declared: 5, Actual: len(raw)}
	}
	if raw[0] != StartMarker {
		return Request{}, fmt.Errorf("protocol: request start marker 0x%02X: %w", raw[0], ErrWrongMessageType)
	}
	length := binary.BigEndian.Uint16(raw[1:3])
	payload := raw[3 : len(raw)-1]
	if int(length) != len(payload) {
		return Request{}, &LengthError{Declared: int(length), Actual: len(payload)}
	}
	if sum := Checksum(length, payload); sum != raw[len(raw)-1] {
		return Request{}, &ChecksumError{Expected: sum, Actual: raw[len(raw)-1]}
	}
	return Request{Command: payload[0], Parameter: append([]byte(nil), payload[1:]...)}, nil
}
