// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

// Builds the remote capture command line, as well as the exec facility
// argument vector wrapping it. All of this is pure string assembly.

package kcap

import (
	"strconv"
	"strings"

	"al.essio.dev/pkg/shellescape"
)

// BuildFilter assembles the packet filter expression from the protocol and
// port clauses and the user's extra filter expression, leaving out absent
// clauses and joining the remaining ones with "and". The extra filter is
// passed through as-is: the remote capture tool is the source of truth for
// its syntax. It only gets parenthesized when it contains an alternation and
// comes after other clauses, so that "and" doesn't bind parts of it.
func BuildFilter(proto Protocol, port int, extra string) string {
	clauses := []string{}
	switch proto {
	case ProtocolTCP, ProtocolUDP:
		clauses = append(clauses, string(proto))
	}
	if port > 0 {
		clauses = append(clauses, "port "+strconv.Itoa(port))
	}
	if extra = strings.TrimSpace(extra); extra != "" {
		if len(clauses) > 0 && hasAlternation(extra) {
			extra = "(" + extra + ")"
		}
		clauses = append(clauses, extra)
	}
	return strings.Join(clauses, " and ")
}

// hasAlternation returns true if expr contains an "or" outside of any
// parentheses.
func hasAlternation(expr string) bool {
	depth := 0
	for _, field := range strings.Fields(expr) {
		if depth == 0 && (field == "or" || field == "||") {
			return true
		}
		depth += strings.Count(field, "(") - strings.Count(field, ")")
	}
	return false
}

// BuildCommand returns the remote command line for the capture spec. The
// capture tool is told to write its container to stdout, to flush after each
// packet, and to not truncate packets.
func BuildCommand(spec CaptureSpec) string {
	spec = spec.WithDefaults()
	filter := BuildFilter(spec.Protocol, spec.Port, spec.Filter)
	args := []string{}
	if spec.Sudo {
		args = append(args, "sudo", "-n")
	}
	switch spec.CaptureTool() {
	case ToolTshark:
		args = append(args, "tshark", "-i", shellescape.Quote(spec.Interface),
			"-l", "-q", "-s", "0", "-F", string(spec.Format), "-w", "-")
		if filter != "" {
			args = append(args, "-f", shellescape.Quote(filter))
		}
	default:
		args = append(args, "tcpdump", "-i", shellescape.Quote(spec.Interface),
			"-U", "-s", "0", "-w", "-")
		if filter != "" {
			args = append(args, shellescape.Quote(filter))
		}
	}
	return strings.Join(args, " ")
}

// ExecArgs returns the kubectl argument vector for running the command line
// inside the pod (container) via a shell.
func (p OrchestratorExec) ExecArgs(cmdline string) []string {
	args := []string{"exec", "-n", p.Namespace, p.Pod}
	if p.Container != "" {
		args = append(args, "-c", p.Container)
	}
	return append(args, "--", "sh", "-c", cmdline)
}
