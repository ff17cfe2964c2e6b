// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package kcap

import (
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("remote capture command", func() {

	DescribeTable("builds filter expressions",
		func(proto Protocol, port int, extra string, expected string) {
			Expect(BuildFilter(proto, port, extra)).To(Equal(expected))
		},
		Entry(nil, ProtocolTCP, 443, "", "tcp and port 443"),
		Entry(nil, ProtocolAll, 443, "", "port 443"),
		Entry(nil, ProtocolUDP, 53, "host 10.0.0.5", "udp and port 53 and host 10.0.0.5"),
		Entry(nil, ProtocolAll, 0, "", ""),
		Entry(nil, ProtocolTCP, 0, "", "tcp"),
		Entry(nil, ProtocolAll, 0, "host a or host b", "host a or host b"),
		Entry(nil, ProtocolTCP, 0, "host a or host b", "tcp and (host a or host b)"),
		Entry(nil, ProtocolTCP, 0, "(host a or host b) and not port 22", "tcp and (host a or host b) and not port 22"),
		Entry(nil, ProtocolAll, 80, "  net 10.0.0.0/8  ", "port 80 and net 10.0.0.0/8"),
	)

	It("builds tcpdump command lines", func() {
		Expect(BuildCommand(CaptureSpec{Protocol: ProtocolTCP, Port: 443})).To(Equal(
			"tcpdump -i any -U -s 0 -w - 'tcp and port 443'"))
		Expect(BuildCommand(CaptureSpec{Interface: "eth0"})).To(Equal(
			"tcpdump -i eth0 -U -s 0 -w -"))
		Expect(BuildCommand(CaptureSpec{Interface: "eth0", Sudo: true})).To(Equal(
			"sudo -n tcpdump -i eth0 -U -s 0 -w -"))
	})

	It("builds tshark command lines for pcapng", func() {
		Expect(BuildCommand(CaptureSpec{Format: FormatPcapng, Protocol: ProtocolUDP, Port: 53})).To(Equal(
			"tshark -i any -l -q -s 0 -F pcapng -w - -f 'udp and port 53'"))
		Expect(BuildCommand(CaptureSpec{Tool: ToolTshark})).To(Equal(
			"tshark -i any -l -q -s 0 -F pcap -w -"))
	})

	It("keeps the filter a single shell word", func() {
		cmd := BuildCommand(CaptureSpec{Filter: "host 10.0.0.5 and not port 22"})
		Expect(cmd).To(HaveSuffix(" 'host 10.0.0.5 and not port 22'"))

		cmd = BuildCommand(CaptureSpec{Filter: "ether host 'x'; rm -rf /"})
		Expect(cmd).To(HaveSuffix(` 'ether host '"'"'x'"'"'; rm -rf /'`))
	})

	It("is deterministic", func() {
		spec := CaptureSpec{Interface: "eth0", Protocol: ProtocolTCP, Port: 8080, Filter: "host a or host b"}
		Expect(BuildCommand(spec)).To(Equal(BuildCommand(spec)))
	})

	DescribeTable("quotes the interface name for the shell",
		func(iface, expected string) {
			Expect(BuildCommand(CaptureSpec{Interface: iface})).To(Equal(
				"tcpdump -i " + expected + " -U -s 0 -w -"))
		},
		Entry(nil, "eth0", "eth0"),
		Entry(nil, "br-1a2b.100", "br-1a2b.100"),
		Entry(nil, "vlan 7", "'vlan 7'"),
		Entry(nil, "it's", `'it'"'"'s'`),
		Entry(nil, "$(reboot)", "'$(reboot)'"),
	)

	It("builds the exec argument vector", func() {
		cmdline := "tcpdump -i any -U -s 0 -w -"
		args := OrchestratorExec{Namespace: "web", Pod: "frontend-0", Container: "nginx"}.ExecArgs(cmdline)
		Expect(args).To(Equal([]string{
			"exec", "-n", "web", "frontend-0", "-c", "nginx", "--", "sh", "-c", cmdline}))
		Expect(args[len(args)-1]).To(Equal(cmdline))
		Expect(strings.Join(OrchestratorExec{Namespace: "default", Pod: "p"}.ExecArgs("x"), " ")).
			To(Equal("exec -n default p -- sh -c x"))
	})

	Context("capture spec", func() {

		It("applies defaults", func() {
			Expect(CaptureSpec{}.WithDefaults()).To(Equal(CaptureSpec{
				Interface: "any",
				Protocol:  ProtocolAll,
				Format:    FormatPcap,
				Tool:      ToolAuto,
			}))
			Expect(CaptureSpec{}.Validate()).To(Succeed())
		})

		It("picks the capture tool", func() {
			Expect(CaptureSpec{}.CaptureTool()).To(Equal(ToolTcpdump))
			Expect(CaptureSpec{Format: FormatPcapng}.CaptureTool()).To(Equal(ToolTshark))
			Expect(CaptureSpec{Tool: ToolTshark}.CaptureTool()).To(Equal(ToolTshark))
		})

		DescribeTable("rejects invalid specs",
			func(spec CaptureSpec) {
				Expect(spec.Validate()).To(HaveOccurred())
			},
			Entry("protocol", CaptureSpec{Protocol: "sctp"}),
			Entry("format", CaptureSpec{Format: "erf"}),
			Entry("tool", CaptureSpec{Tool: "dumpcap"}),
			Entry("negative port", CaptureSpec{Port: -1}),
			Entry("port too large", CaptureSpec{Port: 65536}),
			Entry("negative duration", CaptureSpec{Duration: -time.Second}),
		)

		It("reports tcpdump and pcapng as format incompatibility", func() {
			err := CaptureSpec{Format: FormatPcapng, Tool: ToolTcpdump}.Validate()
			var fmtErr *FormatError
			Expect(errors.As(err, &fmtErr)).To(BeTrue())
			Expect(fmtErr.Want).To(Equal(FormatPcapng))
			Expect(ExitCode(err)).To(Equal(ExitIncompatible))
		})

	})

})
