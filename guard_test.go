// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package kcap

import (
	"bytes"
	"errors"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var packet = []byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x02, 0x42, 0xac, 0x11, 0x00, 0x02,
	0x08, 0x06, 0x00, 0x01, 0x08, 0x00, 0x06, 0x04, 0x00, 0x01,
}

func packetInfo() gopacket.CaptureInfo {
	return gopacket.CaptureInfo{
		Timestamp:     time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC),
		CaptureLength: len(packet),
		Length:        len(packet),
	}
}

// pcapStream returns a pcap capture stream with a single packet.
func pcapStream() []byte {
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	Expect(w.WriteFileHeader(65536, layers.LinkTypeEthernet)).To(Succeed())
	Expect(w.WritePacket(packetInfo(), packet)).To(Succeed())
	return buf.Bytes()
}

// pcapngStream returns a pcapng capture stream with a single packet.
func pcapngStream() []byte {
	var buf bytes.Buffer
	w, err := pcapgo.NewNgWriter(&buf, layers.LinkTypeEthernet)
	Expect(err).NotTo(HaveOccurred())
	Expect(w.WritePacket(packetInfo(), packet)).To(Succeed())
	Expect(w.Flush()).To(Succeed())
	return buf.Bytes()
}

// dribble writes the stream in small chunks.
func dribble(w *formatGuard, stream []byte, chunk int) error {
	for len(stream) > 0 {
		n := chunk
		if n > len(stream) {
			n = len(stream)
		}
		written, err := w.Write(stream[:n])
		if err != nil {
			return err
		}
		Expect(written).To(Equal(n))
		stream = stream[n:]
	}
	return w.Flush()
}

var _ = Describe("container format guard", func() {

	It("detects container formats", func() {
		Expect(DetectFormat(pcapStream())).To(Equal(FormatPcap))
		Expect(DetectFormat(pcapngStream())).To(Equal(FormatPcapng))
		Expect(DetectFormat([]byte{0xa1, 0xb2, 0xc3, 0xd4})).To(Equal(FormatPcap))
		Expect(DetectFormat([]byte{0x4d, 0x3c, 0xb2, 0xa1})).To(Equal(FormatPcap))
		Expect(DetectFormat([]byte("tcpdump: syntax error"))).To(Equal(FormatUnknown))
		Expect(DetectFormat([]byte{0xd4})).To(Equal(FormatUnknown))
	})

	DescribeTable("passes matching streams through unmodified",
		func(want Format, stream func() []byte, chunk int) {
			s := stream()
			var sink bytes.Buffer
			Expect(dribble(newFormatGuard(want, &sink), s, chunk)).To(Succeed())
			Expect(sink.Bytes()).To(Equal(s))
		},
		Entry("pcap in one go", FormatPcap, pcapStream, 1<<16),
		Entry("pcap octet by octet", FormatPcap, pcapStream, 1),
		Entry("pcap in odd chunks", FormatPcap, pcapStream, 7),
		Entry("pcapng in one go", FormatPcapng, pcapngStream, 1<<16),
		Entry("pcapng octet by octet", FormatPcapng, pcapngStream, 1),
		Entry("unchecked", Format(""), func() []byte { return []byte("anything") }, 3),
	)

	DescribeTable("rejects mismatching streams without passing anything on",
		func(want Format, stream func() []byte, got Format) {
			var sink bytes.Buffer
			g := newFormatGuard(want, &sink)
			err := dribble(g, stream(), 5)
			var fmtErr *FormatError
			Expect(errors.As(err, &fmtErr)).To(BeTrue())
			Expect(fmtErr.Want).To(Equal(want))
			Expect(fmtErr.Got).To(Equal(got))
			Expect(sink.Len()).To(BeZero())
			Expect(g.Flush()).To(Succeed())
			Expect(sink.Len()).To(BeZero())
		},
		Entry("pcap instead of pcapng", FormatPcapng, pcapStream, FormatPcap),
		Entry("pcapng instead of pcap", FormatPcap, pcapngStream, FormatPcapng),
		Entry("error message instead of pcap", FormatPcap,
			func() []byte { return []byte("sh: tcpdump: not found\n") }, FormatUnknown),
	)

	It("passes on a stream ending inside the header", func() {
		var sink bytes.Buffer
		g := newFormatGuard(FormatPcap, &sink)
		_, err := g.Write(pcapStream()[:10])
		Expect(err).NotTo(HaveOccurred())
		Expect(sink.Len()).To(BeZero())
		Expect(g.Flush()).To(Succeed())
		Expect(sink.Bytes()).To(Equal(pcapStream()[:10]))
	})

})
