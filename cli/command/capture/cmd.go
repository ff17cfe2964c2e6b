// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package capture

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/siemens/kcap"
	"github.com/siemens/kcap/cli"
	"github.com/siemens/kcap/cli/command"
	"github.com/siemens/kcap/pcapng"
	"github.com/thediveo/go-plugger/v3"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Names of the capture-only CLI flags.
const (
	WriteFlag        = "write"
	AnnotateFlag     = "annotate"
	StartupGraceFlag = "startup-grace"
	StopTimeoutFlag  = "stop-timeout"
)

// captureCmd defines the "kcap capture" command. The capture target is
// specified using the target flags contributed by the node and pod plugins.
var captureCmd = &cobra.Command{
	Use:   "capture [flags]",
	Short: "Capture and then live stream network traffic from a remote node or pod.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Keep capturing until we drop ... because this CLI tool was
		// SIGINT'ed or SIGTERM'ed, or the capture duration has elapsed.
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return capture(ctx, cmd, os.Stdout)
	},
}

func init() {
	plugger.Group[cli.SetupCLI]().Register(CaptureSetupCLI, plugger.WithPlugin("capture"))
}

// CaptureSetupCLI adds the "capture" command.
func CaptureSetupCLI(cmd *cobra.Command) {
	cmd.AddCommand(captureCmd)
	fs := captureCmd.Flags()
	command.AddCaptureSpecFlags(fs)
	fs.StringP(WriteFlag, "w", "",
		`Write captured network packets to file. Use "-" for stdout and ws://... or
wss://... for streaming to a websocket service. Defaults to a file named after
the current time, such as capture-20230601T120000Z.pcap.`)
	fs.Bool(AnnotateFlag, false,
		"Add the capture target information to the comment of the pcapng section header")
	fs.Duration(StartupGraceFlag, kcap.DefaultStartupGrace,
		"Time after which to consider a silent capture as streaming")
	fs.Duration(StopTimeoutFlag, kcap.DefaultStopTimeout,
		"Time to wait for the remote capture tool to stop before killing it")
}

// capture resolves the capture target, connects to it, and then relays the
// capture until either the capture duration elapses, the remote capture
// ends, or ctx gets cancelled.
func capture(ctx context.Context, cmd *cobra.Command, stdout io.Writer) error {
	flags := cmd.Flags()
	spec, err := command.CaptureSpec(flags)
	if err != nil {
		return err
	}
	plan, err := command.ResolveTarget()
	if err != nil {
		return err
	}
	log.Debugf("capturing from %s", plan.Target())
	exec, err := command.Connect(ctx, plan)
	if err != nil {
		return err
	}
	// From here on, the session owns the executor; but until there is a
	// session, we need to clean up ourselves.
	dest, _ := flags.GetString(WriteFlag)
	sink, err := kcap.OpenSink(dest, spec.Format, stdout)
	if err != nil {
		exec.Close()
		return err
	}
	if annotate, _ := flags.GetBool(AnnotateFlag); annotate {
		sink = annotated(ctx, sink, exec, plan, spec)
	}
	grace, _ := flags.GetDuration(StartupGraceFlag)
	stopTimeout, _ := flags.GetDuration(StopTimeoutFlag)
	session := kcap.NewSession(exec, kcap.BuildCommand(spec), sink, kcap.SessionOptions{
		Duration:     spec.Duration,
		StartupGrace: grace,
		StopTimeout:  stopTimeout,
		Format:       spec.Format,
		Observer: func(_, to kcap.State) {
			if to == kcap.StateStreaming {
				log.Infof("capture streaming from %s", plan.Target())
			}
		},
	})
	log.Infof("capturing from %s into %s", plan.Target(), sink)
	report, err := session.Run(ctx)
	log.WithFields(log.Fields{
		"session": report.ID,
		"bytes":   report.Bytes,
		"chunks":  report.Chunks,
		"elapsed": report.Elapsed.Round(time.Millisecond),
	}).Infof("capture %s: %s", report.Outcome, report.Reason)
	return err
}

// annotated wraps the sink so that a pcapng capture gets annotated with the
// capture target information.
func annotated(ctx context.Context, sink kcap.OutputSink, exec kcap.Executor,
	plan kcap.TransportPlan, spec kcap.CaptureSpec,
) kcap.OutputSink {
	if spec.Format != kcap.FormatPcapng {
		log.Warnf("--%s only applies to pcapng captures", AnnotateFlag)
		return sink
	}
	target := plan.Describe()
	if namer, ok := exec.(command.NodeNamer); ok && target.NodeName == "" {
		node, err := namer.NodeName(ctx)
		if err != nil {
			log.Warnf("capture annotation lacks node: %s", err)
		} else {
			target.NodeName = node
		}
	}
	return pcapng.NewAnnotator(sink, pcapng.NewTargetInfo(target, spec))
}
