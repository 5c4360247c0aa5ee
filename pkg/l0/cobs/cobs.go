// Package cobs implements Consistent Overhead Byte Stuffing.
//
// An encoded block never contains a zero byte, so zero can be used as
// the frame delimiter on the wire. Encode and Decode never append or
// expect the delimiter itself.
package cobs

import "errors"

var (
	// ErrInvalidEncoding indicates the input is not a valid COBS block.
	ErrInvalidEncoding = errors.New("cobs: invalid encoding")
	// ErrShortBuffer indicates the destination buffer is too small.
	ErrShortBuffer = errors.New("cobs: short buffer")
)

// Delimiter is the frame delimiter byte.
const Delimiter byte = 0

// MaxEncodedLen returns the worst-case encoded size of n bytes.
func MaxEncodedLen(n int) int {
	return n + n/254 + 1
}

// Encode encodes src into dst and returns the number of bytes written.
// dst must have room for MaxEncodedLen(len(src)) bytes.
func Encode(dst, src []byte) (int, error) {
	if len(dst) < MaxEncodedLen(len(src)) {
		return 0, ErrShortBuffer
	}
	codeAt, out, code := 0, 1, byte(1)
	for _, b := range src {
		if b == 0 {
			dst[codeAt] = code
			codeAt, code = out, 1
			out++
			continue
		}
		dst[out] = b
		out++
		if code++; code == 0xff {
			dst[codeAt] = code
			codeAt, code = out, 1
			out++
		}
	}
	dst[codeAt] = code
	return out, nil
}

// Decode decodes src into dst and returns the number of bytes written.
// src must not include the delimiter. Decoding in place (dst == src)
// is allowed as output never overtakes input.
func Decode(dst, src []byte) (int, error) {
	out := 0
	for i := 0; i < len(src); {
		code := src[i]
		if code == 0 {
			return 0, ErrInvalidEncoding
		}
		i++
		end := i + int(code) - 1
		if end > len(src) {
			return 0, ErrInvalidEncoding
		}
		for ; i < end; i++ {
			if src[i] == 0 {
				return 0, ErrInvalidEncoding
			}
			if out >= len(dst) {
				return 0, ErrShortBuffer
			}
			dst[out] = src[i]
			out++
		}
		if code != 0xff && i < len(src) {
			if out >= len(dst) {
				return 0, ErrShortBuffer
			}
			dst[out] = 0
			out++
		}
	}
	return out, nil
}
