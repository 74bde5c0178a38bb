// Package xdr implements the subset of External Data Representation
// (RFC 4506) needed by the ONC RPC and NFSv3 client layers.
//
// Everything here is bounds-checked: decoding a truncated or malformed
// buffer returns a *DecodeError and never panics or reads past the end of
// the input.
package xdr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxOpaqueLength caps variable-length opaque fields to protect against
// malicious or corrupt length prefixes. NFSv3 replies handled by this client
// never carry a single opaque field larger than 1 MB.
const MaxOpaqueLength = 1024 * 1024

// DecodeError indicates a truncated or malformed XDR buffer. Callers treat
// it as a protocol violation on the reply, not a crash.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("xdr decode %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeErr(field string, err error) *DecodeError {
	return &DecodeError{Field: field, Err: err}
}

// ============================================================================
// Decoding - Wire Format → Go Values
// ============================================================================

// DecodeUint32 reads a big-endian 32-bit unsigned integer.
func DecodeUint32(reader io.Reader, field string) (uint32, error) {
	var v uint32
	if err := binary.Read(reader, binary.BigEndian, &v); err != nil {
		return 0, decodeErr(field, err)
	}
	return v, nil
}

// DecodeUint64 reads a big-endian 64-bit unsigned integer.
func DecodeUint64(reader io.Reader, field string) (uint64, error) {
	var v uint64
	if err := binary.Read(reader, binary.BigEndian, &v); err != nil {
		return 0, decodeErr(field, err)
	}
	return v, nil
}

// DecodeEnum reads an XDR enum. Enums are signed 32-bit per RFC 4506
// Section 4.3, even when every defined value is non-negative.
func DecodeEnum(reader io.Reader, field string) (int32, error) {
	var v int32
	if err := binary.Read(reader, binary.BigEndian, &v); err != nil {
		return 0, decodeErr(field, err)
	}
	return v, nil
}

// DecodeBool reads an XDR boolean (uint32: 0=false, anything else=true).
func DecodeBool(reader io.Reader, field string) (bool, error) {
	v, err := DecodeUint32(reader, field)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// DecodeOpaque reads XDR variable-length opaque data.
//
// Per RFC 4506 Section 4.10:
// Format: [length:uint32][data:length bytes][padding:0-3 bytes]
// Padding aligns the next item to a 4-byte boundary.
func DecodeOpaque(reader io.Reader, field string) ([]byte, error) {
	length, err := DecodeUint32(reader, field+" length")
	if err != nil {
		return nil, err
	}

	if length > MaxOpaqueLength {
		return nil, decodeErr(field, fmt.Errorf("length %d exceeds maximum %d", length, MaxOpaqueLength))
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, decodeErr(field, err)
	}

	if err := skipPadding(reader, length); err != nil {
		return nil, decodeErr(field+" padding", err)
	}

	return data, nil
}

// DecodeFixedOpaque reads exactly size bytes of fixed-length opaque data
// plus alignment padding. Used for verifier fields (writeverf3, cookieverf3).
func DecodeFixedOpaque(reader io.Reader, size uint32, field string) ([]byte, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, decodeErr(field, err)
	}
	if err := skipPadding(reader, size); err != nil {
		return nil, decodeErr(field+" padding", err)
	}
	return data, nil
}

// DecodeString reads an XDR variable-length string.
//
// Per RFC 4506 Section 4.11, strings share the opaque encoding and are
// interpreted as UTF-8.
func DecodeString(reader io.Reader, field string) (string, error) {
	data, err := DecodeOpaque(reader, field)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// skipPadding discards the 0-3 zero bytes that align a variable-length item
// to the next 4-byte boundary.
func skipPadding(reader io.Reader, length uint32) error {
	padding := (4 - (length % 4)) % 4
	if padding == 0 {
		return nil
	}
	_, err := io.CopyN(io.Discard, reader, int64(padding))
	return err
}

// ============================================================================
// Encoding - Go Values → Wire Format
// ============================================================================

// EncodeUint32 writes a big-endian 32-bit unsigned integer.
func EncodeUint32(buf *bytes.Buffer, v uint32) {
	_ = binary.Write(buf, binary.BigEndian, v)
}

// EncodeUint64 writes a big-endian 64-bit unsigned integer.
func EncodeUint64(buf *bytes.Buffer, v uint64) {
	_ = binary.Write(buf, binary.BigEndian, v)
}

// EncodeBool writes an XDR boolean.
func EncodeBool(buf *bytes.Buffer, v bool) {
	if v {
		EncodeUint32(buf, 1)
	} else {
		EncodeUint32(buf, 0)
	}
}

// EncodeOpaque writes XDR variable-length opaque data with length prefix
// and 4-byte alignment padding.
func EncodeOpaque(buf *bytes.Buffer, data []byte) {
	length := uint32(len(data))
	EncodeUint32(buf, length)
	buf.Write(data)
	writePadding(buf, length)
}

// EncodeString writes an XDR string. Strings and opaques share the same
// wire layout.
func EncodeString(buf *bytes.Buffer, s string) {
	EncodeOpaque(buf, []byte(s))
}

func writePadding(buf *bytes.Buffer, length uint32) {
	padding := (4 - (length % 4)) % 4
	for i := uint32(0); i < padding; i++ {
		buf.WriteByte(0)
	}
}
