// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package pcapng

import (
	"encoding/binary"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Option represents a pcapng option, consisting of a Code uniquely identifying
// the type of option, as well as its (binary) value in form of an octet string.
type Option struct {
	Code  uint16
	Value []byte
}

const (
	// OptEndofOpt signals the end of options.
	OptEndofOpt = uint16(0)
	// OptComment contains a comment in form of an UTF-8 string.
	OptComment = uint16(1)
	// OptSHBHardware describes the hardware used to create this section.
	OptSHBHardware = uint16(2)
	// OptSHBOS names the operating system used to create this section.
	OptSHBOS = uint16(3)
	// OptSHBUserAppl names the application used to create this section.
	OptSHBUserAppl = uint16(4)
)

var endOfOptions = []byte{0, 0, 0, 0}

// padded returns n rounded up to the next 32bit boundary.
func padded(n int) int { return (n + 3) &^ 3 }

// ParseOptions decodes the options of a block, up to the end-of-options
// marker or the end of b, whichever comes first. Option values are copied, so
// they don't alias b.
func ParseOptions(b []byte, endian binary.ByteOrder) ([]Option, error) {
	opts := []Option{}
	for len(b) > 0 {
		if len(b) < 4 {
			return nil, fmt.Errorf("truncated option header, %d octets left", len(b))
		}
		code := endian.Uint16(b[0:2])
		length := int(endian.Uint16(b[2:4]))
		if code == OptEndofOpt {
			break
		}
		size := 4 + padded(length)
		if size > len(b) {
			return nil, fmt.Errorf("option %d with length %d exceeds block", code, length)
		}
		opts = append(opts, Option{
			Code:  code,
			Value: append([]byte(nil), b[4:4+length]...),
		})
		if code <= OptSHBUserAppl {
			log.Debugf("option type %d: %q", code, string(b[4:4+length]))
		} else {
			log.Debugf("option type %d: ...", code)
		}
		b = b[size:]
	}
	return opts, nil
}

// String returns an option's value as a string instead of octets, assuming
// UTF-8 encoding.
func (o Option) String() string {
	return string(o.Value)
}

// Bytes returns the octets encoding the option, using the specified
// endianness, padded to a 32bit boundary.
func (o Option) Bytes(endian binary.ByteOrder) []byte {
	b := make([]byte, 4+padded(len(o.Value)))
	endian.PutUint16(b[0:2], o.Code)
	endian.PutUint16(b[2:4], uint16(len(o.Value)))
	copy(b[4:], o.Value)
	return b
}
