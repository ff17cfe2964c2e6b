// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package kcap

import (
	"fmt"
	"time"
)

// Protocol restricts a capture to a transport protocol.
type Protocol string

const (
	ProtocolAll Protocol = "all"
	ProtocolTCP Protocol = "tcp"
	ProtocolUDP Protocol = "udp"
)

// Format is a packet capture container format.
type Format string

const (
	FormatPcap    Format = "pcap"
	FormatPcapng  Format = "pcapng"
	FormatUnknown Format = "unknown"
)

// Ext returns the file name extension for this format, including the dot.
func (f Format) Ext() string {
	if f == FormatPcapng {
		return ".pcapng"
	}
	return ".pcap"
}

// Tool is a remote capture tool.
type Tool string

const (
	ToolAuto    Tool = "auto"
	ToolTcpdump Tool = "tcpdump"
	ToolTshark  Tool = "tshark"
)

// CaptureSpec describes what to capture and in which container format.
type CaptureSpec struct {
	// Network interface to capture from; defaults to "any".
	Interface string
	// Protocol to restrict capturing to; defaults to all protocols.
	Protocol Protocol
	// Port to restrict capturing to; zero means any port.
	Port int
	// Additional packet filter expression, passed through verbatim. Its
	// syntax is the remote capture tool's business:
	// https://www.tcpdump.org/manpages/pcap-filter.7.html
	Filter string
	// Maximum capture duration; zero captures until cancelled.
	Duration time.Duration
	// Container format; defaults to pcap.
	Format Format
	// Remote capture tool; auto picks tcpdump for pcap and tshark for pcapng.
	Tool Tool
	// Run the capture tool via non-interactive sudo.
	Sudo bool
}

// WithDefaults returns a copy of this capture spec with its zero fields set
// to their defaults.
func (s CaptureSpec) WithDefaults() CaptureSpec {
	if s.Interface == "" {
		s.Interface = DefaultInterface
	}
	if s.Protocol == "" {
		s.Protocol = ProtocolAll
	}
	if s.Format == "" {
		s.Format = FormatPcap
	}
	if s.Tool == "" {
		s.Tool = ToolAuto
	}
	return s
}

// CaptureTool returns the remote capture tool to use.
func (s CaptureSpec) CaptureTool() Tool {
	s = s.WithDefaults()
	if s.Tool != ToolAuto {
		return s.Tool
	}
	if s.Format == FormatPcapng {
		return ToolTshark
	}
	return ToolTcpdump
}

// Validate checks the capture spec, after applying defaults. A capture tool
// that cannot write the requested container format is reported as a
// [FormatError].
func (s CaptureSpec) Validate() error {
	s = s.WithDefaults()
	switch s.Protocol {
	case ProtocolAll, ProtocolTCP, ProtocolUDP:
	default:
		return fmt.Errorf("invalid protocol %q, must be tcp, udp, or all", s.Protocol)
	}
	switch s.Format {
	case FormatPcap, FormatPcapng:
	default:
		return fmt.Errorf("invalid capture format %q, must be pcap or pcapng", s.Format)
	}
	switch s.Tool {
	case ToolAuto, ToolTcpdump, ToolTshark:
	default:
		return fmt.Errorf("invalid capture tool %q, must be auto, tcpdump, or tshark", s.Tool)
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port %d", s.Port)
	}
	if s.Duration < 0 {
		return fmt.Errorf("invalid negative capture duration %s", s.Duration)
	}
	// tcpdump only ever writes legacy pcap to stdout; we don't silently
	// downgrade.
	if s.CaptureTool() == ToolTcpdump && s.Format == FormatPcapng {
		return &FormatError{Want: FormatPcapng, Tool: ToolTcpdump}
	}
	return nil
}
