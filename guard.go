// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package kcap

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/google/gopacket/pcapgo"
	log "github.com/sirupsen/logrus"
)

const (
	pcapHeaderLen    = 24 // legacy pcap file header
	pcapngMagicLen   = 12 // SHB block type, block length, byte-order magic
	pcapngBlockType  = 0x0a0d0d0a
	pcapngByteOrder  = 0x1a2b3c4d
	formatSniffBytes = 4
)

// DetectFormat returns the container format of a capture stream beginning
// with head, based on its magic number; it needs at least 4 octets.
func DetectFormat(head []byte) Format {
	if len(head) < formatSniffBytes {
		return FormatUnknown
	}
	if binary.BigEndian.Uint32(head) == pcapngBlockType {
		return FormatPcapng
	}
	switch binary.LittleEndian.Uint32(head) {
	case 0xa1b2c3d4, 0xd4c3b2a1, 0xa1b23c4d, 0x4d3cb2a1:
		return FormatPcap
	}
	return FormatUnknown
}

// formatGuard checks that a capture stream starts with the expected container
// format before passing it on. It holds back only the first few octets until
// it has seen the container's file header; afterwards it passes everything
// through as-is.
type formatGuard struct {
	want        Format
	sink        io.Writer
	head        []byte
	passThrough bool
	err         error
}

// newFormatGuard returns a guard for the wanted format in front of sink; an
// empty format disables checking.
func newFormatGuard(want Format, sink io.Writer) *formatGuard {
	return &formatGuard{
		want:        want,
		sink:        sink,
		passThrough: want == "",
	}
}

// Write passes b on to the sink, once the container header has been
// verified. If the stream turns out to be of a different format than wanted,
// Write returns a [*FormatError] and nothing gets passed on.
func (g *formatGuard) Write(b []byte) (int, error) {
	if g.passThrough {
		return g.sink.Write(b)
	}
	if g.err != nil {
		return 0, g.err
	}
	n := len(b)
	g.head = append(g.head, b...)
	if len(g.head) < formatSniffBytes {
		return n, nil
	}
	got := DetectFormat(g.head)
	if got != g.want {
		return 0, g.reject(got)
	}
	switch got {
	case FormatPcap:
		if len(g.head) < pcapHeaderLen {
			return n, nil
		}
		r, err := pcapgo.NewReader(bytes.NewReader(g.head[:pcapHeaderLen]))
		if err != nil {
			return 0, g.reject(FormatUnknown)
		}
		log.Debugf("pcap stream: link type %s, snap length %d", r.LinkType(), r.Snaplen())
	case FormatPcapng:
		if len(g.head) < pcapngMagicLen {
			return n, nil
		}
		magic := g.head[8:12]
		if binary.BigEndian.Uint32(magic) != pcapngByteOrder &&
			binary.LittleEndian.Uint32(magic) != pcapngByteOrder {
			return 0, g.reject(FormatUnknown)
		}
		log.Debug("pcapng stream: valid section header block")
	}
	g.passThrough = true
	head := g.head
	g.head = nil
	if _, err := g.sink.Write(head); err != nil {
		return 0, err
	}
	return n, nil
}

// reject drops the held back octets and remembers the format mismatch.
func (g *formatGuard) reject(got Format) error {
	g.head = nil
	g.err = &FormatError{Want: g.want, Got: got}
	return g.err
}

// Flush passes on any octets still held back because the stream ended before
// its container header was complete.
func (g *formatGuard) Flush() error {
	if g.passThrough || g.err != nil || len(g.head) == 0 {
		return nil
	}
	head := g.head
	g.head = nil
	g.passThrough = true
	_, err := g.sink.Write(head)
	return err
}
