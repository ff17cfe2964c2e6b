// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package command

import (
	"github.com/siemens/kcap"
	"github.com/spf13/pflag"
)

// Names of the capture spec CLI flags.
const (
	InterfaceFlag = "interface"
	ProtocolFlag  = "protocol"
	PortFlag      = "port"
	FilterFlag    = "filter"
	FormatFlag    = "format"
	ToolFlag      = "tool"
	SudoFlag      = "sudo"
	DurationFlag  = "duration"
)

// AddCaptureSpecFlags adds the flags describing what to capture to the
// specified flag set.
func AddCaptureSpecFlags(fs *pflag.FlagSet) {
	fs.StringP(InterfaceFlag, "i", kcap.DefaultInterface,
		"Name of the network interface to capture from")
	fs.String(ProtocolFlag, string(kcap.ProtocolAll),
		"Restrict capturing to a transport protocol: tcp, udp, or all")
	fs.Int(PortFlag, 0,
		"Restrict capturing to a port number; 0 captures from all ports")
	fs.StringP(FilterFlag, "f", "",
		"Additional capture filter expression in pcap-filter syntax, passed verbatim to the capture tool")
	fs.String(FormatFlag, string(kcap.FormatPcap),
		"Capture container format: pcap or pcapng")
	fs.String(ToolFlag, string(kcap.ToolAuto),
		"Remote capture tool: tcpdump, tshark, or auto (tcpdump for pcap, tshark for pcapng)")
	fs.Bool(SudoFlag, false,
		"Run the remote capture tool via non-interactive sudo")
	fs.Duration(DurationFlag, 0,
		"Stop capturing after this duration (e.g. 30s, 5m); 0 captures until interrupted")
}

// CaptureSpec returns the validated capture spec as specified by the flags
// added by [AddCaptureSpecFlags].
func CaptureSpec(fs *pflag.FlagSet) (kcap.CaptureSpec, error) {
	spec := kcap.CaptureSpec{}
	var err error
	if spec.Interface, err = fs.GetString(InterfaceFlag); err != nil {
		return spec, err
	}
	var s string
	if s, err = fs.GetString(ProtocolFlag); err != nil {
		return spec, err
	}
	spec.Protocol = kcap.Protocol(s)
	if spec.Port, err = fs.GetInt(PortFlag); err != nil {
		return spec, err
	}
	if spec.Filter, err = fs.GetString(FilterFlag); err != nil {
		return spec, err
	}
	if s, err = fs.GetString(FormatFlag); err != nil {
		return spec, err
	}
	spec.Format = kcap.Format(s)
	if s, err = fs.GetString(ToolFlag); err != nil {
		return spec, err
	}
	spec.Tool = kcap.Tool(s)
	if spec.Sudo, err = fs.GetBool(SudoFlag); err != nil {
		return spec, err
	}
	if spec.Duration, err = fs.GetDuration(DurationFlag); err != nil {
		return spec, err
	}
	spec = spec.WithDefaults()
	return spec, spec.Validate()
}
