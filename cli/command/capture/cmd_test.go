// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package capture

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/siemens/kcap"
	"github.com/siemens/kcap/cli"
	"github.com/siemens/kcap/cli/command"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/cobra"
	"github.com/thediveo/go-plugger/v3"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// remoteCapture is a remote capture process that writes its capture and
// then exits on its own.
type remoteCapture struct {
	stdout io.Reader
}

func (p *remoteCapture) Stdout() io.Reader { return p.stdout }
func (p *remoteCapture) Stderr() string    { return "" }
func (p *remoteCapture) Interrupt() error  { return nil }
func (p *remoteCapture) Kill() error       { return nil }
func (p *remoteCapture) Wait() error       { return nil }

// node is a capture node executor replaying a canned capture.
type node struct {
	capture []byte
	cmdline string
	closed  bool
}

func (n *node) Execute(cmdline string) (kcap.Process, error) {
	n.cmdline = cmdline
	return &remoteCapture{stdout: bytes.NewReader(n.capture)}, nil
}

func (n *node) Close() error { n.closed = true; return nil }

func (n *node) NodeName(context.Context) (string, error) { return "worker-7", nil }

var theNode *node

func init() {
	plugger.Group[cli.TargetParams]().Register(
		func(p *kcap.TargetParams) error {
			p.Node = kcap.Endpoint{Host: "worker-7", User: "ops"}
			return nil
		}, plugger.WithPlugin("test"))
	plugger.Group[cli.Connect]().Register(
		func(context.Context, kcap.TransportPlan) (kcap.Executor, error) {
			return theNode, nil
		}, plugger.WithPlugin("test"))
}

var arp = []byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x02, 0x42, 0xac, 0x11, 0x00, 0x02, 0x08, 0x06,
}

func packetInfo() gopacket.CaptureInfo {
	return gopacket.CaptureInfo{
		Timestamp:     time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC),
		CaptureLength: len(arp),
		Length:        len(arp),
	}
}

func pcapCapture() []byte {
	var b bytes.Buffer
	w := pcapgo.NewWriter(&b)
	Expect(w.WriteFileHeader(65536, layers.LinkTypeEthernet)).To(Succeed())
	Expect(w.WritePacket(packetInfo(), arp)).To(Succeed())
	return b.Bytes()
}

func pcapngCapture() []byte {
	var b bytes.Buffer
	w, err := pcapgo.NewNgWriter(&b, layers.LinkTypeEthernet)
	Expect(err).NotTo(HaveOccurred())
	Expect(w.WritePacket(packetInfo(), arp)).To(Succeed())
	Expect(w.Flush()).To(Succeed())
	return b.Bytes()
}

var _ = Describe("capture command", Ordered, func() {

	var root *cobra.Command

	BeforeAll(func() {
		root = command.SetupCLI()
		root.SetOut(io.Discard)
		root.SetErr(io.Discard)
	})

	It("captures into a pcap file", func() {
		theNode = &node{capture: pcapCapture()}
		name := filepath.Join(GinkgoT().TempDir(), "dns.pcap")
		root.SetArgs([]string{"capture", "--config", "",
			"-i", "eth0", "--protocol", "udp", "--port", "53", "-w", name})
		Expect(root.Execute()).To(Succeed())

		Expect(theNode.cmdline).To(Equal("tcpdump -i eth0 -U -s 0 -w - 'udp and port 53'"))
		Expect(theNode.closed).To(BeTrue())
		f, err := os.Open(name)
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()
		r, err := pcapgo.NewReader(f)
		Expect(err).NotTo(HaveOccurred())
		data, _, err := r.ReadPacketData()
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal(arp))
	})

	It("annotates a pcapng capture", func() {
		theNode = &node{capture: pcapngCapture()}
		name := filepath.Join(GinkgoT().TempDir(), "dns.pcapng")
		root.SetArgs([]string{"capture", "--config", "",
			"-i", "any", "--protocol", "all", "--port", "0", "--format", "pcapng", "--annotate", "-w", name})
		Expect(root.Execute()).To(Succeed())

		Expect(theNode.cmdline).To(Equal("tshark -i any -l -q -s 0 -F pcapng -w -"))
		capture, err := os.ReadFile(name)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(capture)).To(ContainSubstring("target: worker-7"))
		r, err := pcapgo.NewNgReader(bytes.NewReader(capture), pcapgo.DefaultNgReaderOptions)
		Expect(err).NotTo(HaveOccurred())
		data, _, err := r.ReadPacketData()
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal(arp))
	})

	It("fails on a container format mismatch", func() {
		theNode = &node{capture: pcapCapture()}
		name := filepath.Join(GinkgoT().TempDir(), "wrong.pcapng")
		root.SetArgs([]string{"capture", "--config", "",
			"--format", "pcapng", "--annotate=false", "-w", name})
		err := root.Execute()
		Expect(err).To(HaveOccurred())
		Expect(kcap.ExitCode(err)).To(Equal(kcap.ExitIncompatible))
		Expect(theNode.closed).To(BeTrue())
	})

	It("logs each session state transition once", func() {
		logger := log.StandardLogger()
		hooks := logger.ReplaceHooks(make(log.LevelHooks))
		DeferCleanup(func() { logger.ReplaceHooks(hooks) })
		hook := logtest.NewLocal(logger)

		theNode = &node{capture: pcapCapture()}
		name := filepath.Join(GinkgoT().TempDir(), "debug.pcap")
		root.SetArgs([]string{"capture", "--config", "", "--debug", "--format", "pcap", "-w", name})
		Expect(root.Execute()).To(Succeed())

		transitions := map[string]int{}
		for _, entry := range hook.AllEntries() {
			if strings.HasPrefix(entry.Message, "capture session ") {
				transitions[entry.Message]++
			}
		}
		Expect(transitions).To(HaveKey("capture session idle -> starting"))
		Expect(transitions).To(HaveKey("capture session completing -> closed"))
		for msg, count := range transitions {
			Expect(count).To(Equal(1), msg)
		}
	})

})
