package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/fhmmla/oee-be/pkg/models"
)

// ErrUnsupportedEncoding is returned for an unknown encoding tag.
var ErrUnsupportedEncoding = errors.New("unsupported register encoding")

// encodingWidth returns the buffer size in bytes an encoding reads.
func encodingWidth(enc models.Encoding) int {
	switch enc {
	case models.EncodingInt16BE, models.EncodingInt16LE,
		models.EncodingUint16BE, models.EncodingUint16LE:
		return 2
	default:
		return 4
	}
}

// ParseRegisters decodes a register byte buffer into a scalar. The buffer is
// the raw Modbus payload: each 16-bit register in big-endian order, registers
// concatenated in wire order. The read happens at offset 0 of the buffer.
func ParseRegisters(buf []byte, enc models.Encoding) (float64, error) {
	width := encodingWidth(enc)
	if len(buf) < width {
		return 0, fmt.Errorf("register buffer too short for %s: got %d bytes, need %d", enc, len(buf), width)
	}

	switch enc {
	case models.EncodingFloat32BE:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(buf))), nil
	case models.EncodingFloat32LE:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf))), nil
	case models.EncodingInt16BE:
		return float64(int16(binary.BigEndian.Uint16(buf))), nil
	case models.EncodingInt16LE:
		return float64(int16(binary.LittleEndian.Uint16(buf))), nil
	case models.EncodingUint16BE:
		return float64(binary.BigEndian.Uint16(buf)), nil
	case models.EncodingUint16LE:
		return float64(binary.LittleEndian.Uint16(buf)), nil
	case models.EncodingInt32BE:
		return float64(int32(binary.BigEndian.Uint32(buf))), nil
	case models.EncodingInt32LE:
		return float64(int32(binary.LittleEndian.Uint32(buf))), nil
	case models.EncodingUint32BE:
		return float64(binary.BigEndian.Uint32(buf)), nil
	case models.EncodingUint32LE:
		return float64(binary.LittleEndian.Uint32(buf)), nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, enc)
	}
}

// EncodeValue is the inverse of ParseRegisters for well-formed values.
func EncodeValue(value float64, enc models.Encoding) ([]byte, error) {
	buf := make([]byte, encodingWidth(enc))

	switch enc {
	case models.EncodingFloat32BE:
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(value)))
	case models.EncodingFloat32LE:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(value)))
	case models.EncodingInt16BE:
		binary.BigEndian.PutUint16(buf, uint16(int16(value)))
	case models.EncodingInt16LE:
		binary.LittleEndian.PutUint16(buf, uint16(int16(value)))
	case models.EncodingUint16BE:
		binary.BigEndian.PutUint16(buf, uint16(value))
	case models.EncodingUint16LE:
		binary.LittleEndian.PutUint16(buf, uint16(value))
	case models.EncodingInt32BE:
		binary.BigEndian.PutUint32(buf, uint32(int32(value)))
	case models.EncodingInt32LE:
		binary.LittleEndian.PutUint32(buf, uint32(int32(value)))
	case models.EncodingUint32BE:
		binary.BigEndian.PutUint32(buf, uint32(value))
	case models.EncodingUint32LE:
		binary.LittleEndian.PutUint32(buf, uint32(value))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, enc)
	}

	return buf, nil
}
