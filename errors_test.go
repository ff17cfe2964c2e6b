// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package kcap

import (
	"errors"
	"fmt"
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("errors", func() {

	DescribeTable("map onto exit codes",
		func(err error, code int) {
			Expect(ExitCode(err)).To(Equal(code))
			Expect(ExitCode(fmt.Errorf("wrapped: %w", err))).To(Equal(code))
		},
		Entry("generic", errors.New("D'oh!"), ExitFailure),
		Entry("invalid target", &InvalidTargetError{Reason: "nothing"}, ExitInvalidTarget),
		Entry("connect", &ConnectError{Stage: StageConnect, HopIndex: 0, Err: io.EOF}, ExitConnect),
		Entry("remote", &RemoteExecutionError{ExitStatus: 1}, ExitRemote),
		Entry("sink", &SinkError{Op: "write", Sink: "file x", Err: io.ErrShortWrite}, ExitLocalIO),
		Entry("format", &FormatError{Want: FormatPcapng, Tool: ToolTcpdump}, ExitIncompatible),
	)

	It("maps success", func() {
		Expect(ExitCode(nil)).To(Equal(ExitOK))
	})

	It("names the failing hop", func() {
		err := &ConnectError{Stage: StageAuthenticate, HopIndex: 1, Host: "node:22", Err: io.EOF}
		Expect(err.Error()).To(Equal("authenticate failed at hop 1 (node:22): EOF"))
		Expect(errors.Is(err, io.EOF)).To(BeTrue())

		err = &ConnectError{Stage: StageStream, HopIndex: -1, Err: io.ErrUnexpectedEOF}
		Expect(err.Error()).To(Equal("stream failed: unexpected EOF"))
	})

	It("carries the remote stderr verbatim", func() {
		err := &RemoteExecutionError{ExitStatus: 127, Stderr: "sh: tcpdump: not found"}
		Expect(err.Error()).To(Equal("remote capture failed with exit status 127: sh: tcpdump: not found"))

		err = &RemoteExecutionError{ExitStatus: -1, Err: errors.New("session closed")}
		Expect(err.Error()).To(Equal("remote capture failed: session closed"))
	})

	It("describes format mismatches", func() {
		Expect((&FormatError{Want: FormatPcapng, Tool: ToolTcpdump}).Error()).
			To(Equal("capture tool tcpdump cannot write pcapng containers"))
		Expect((&FormatError{Want: FormatPcap, Got: FormatUnknown}).Error()).
			To(Equal("remote capture stream is unknown, but pcap was requested"))
	})

})
