// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

// Provides the "kcap plan" command for showing how a capture target will be
// reached, without connecting to it.

package command

import (
	"context"
	"io"
	"os"

	"github.com/siemens/kcap"
	"github.com/siemens/kcap/api"
	"github.com/siemens/kcap/cli"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thediveo/go-plugger/v3"
	"github.com/thediveo/klo"
)

// Builtin custom-columns templates
const (
	// PlanTemplate defines the custom columns when listing transport plan
	// steps.
	PlanTemplate = "STEP:{.Step},KIND:{.Kind},ADDRESS:{.Address},USER:{.User}"
	// PlanWideTemplate additionally tacks on where the steps originate from,
	// the authentication methods, as well as the remote command.
	PlanWideTemplate = "STEP:{.Step},KIND:{.Kind},ADDRESS:{.Address},USER:{.User},VIA:{.Via},AUTH:{.Auth},NODE:{.Node},COMMAND:{.Command}"

	// NameTemplate for handling "-o name" and only showing the addresses of
	// the steps; this template should be used with no headers shown, as
	// kubectl and others do.
	NameTemplate = "ADDRESS:{.Address}"
)

// LookupNodeFlag asks for the node of a pod target to be looked up.
const LookupNodeFlag = "lookup-node"

// planCmd defines the "kcap plan" command.
var planCmd = &cobra.Command{
	Use:   "plan [flags]",
	Short: "Show how to reach a capture target and what to run there",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showPlan(cmd.Context(), cmd, os.Stdout)
	},
}

func init() {
	plugger.Group[cli.SetupCLI]().Register(PlanSetupCLI, plugger.WithPlugin("plan"))
}

// PlanSetupCLI adds the “plan” command.
func PlanSetupCLI(cmd *cobra.Command) {
	cmd.AddCommand(planCmd)
	addPlanFlags(planCmd.Flags())
}

func addPlanFlags(fs *pflag.FlagSet) {
	fs.StringP("output", "o", "",
		"Output format. One of: json|yaml|wide|name|custom-columns=...|custom-columns-file=...|jsonpath=...|jsonpath-file=...")
	fs.Bool("no-headers", false, "When using the default or custom-column output format, don't print headers (default print headers).")
	fs.String("sort-by", "",
		"If non-empty, sort custom-columns using this field specification. The field specification is expressed as a JSONPath expression (e.g. '{.Address}'). Defaults to the order of the steps.")
	fs.Bool(LookupNodeFlag, false,
		"Look up the node hosting a pod target")
	AddCaptureSpecFlags(fs)
}

// showPlan resolves the capture target and prints the steps of its
// transport plan, with the remote capture command attached to the final
// step.
func showPlan(ctx context.Context, cmd *cobra.Command, w io.Writer) error {
	spec, err := CaptureSpec(cmd.Flags())
	if err != nil {
		return err
	}
	plan, err := ResolveTarget()
	if err != nil {
		return err
	}
	steps := plan.Steps()
	last := &steps[len(steps)-1]
	last.Command = kcap.BuildCommand(spec)
	if lookup, _ := cmd.Flags().GetBool(LookupNodeFlag); lookup {
		last.Node = lookupNode(ctx, plan)
	}
	// Get the output CLI flag and prepare a suitable object printer.
	prn, err := getPrinter(cmd)
	if err != nil {
		return err
	}
	// ...throwing in sorting, if asked for. It depends on the object printer
	// if it will honor the sorted data or will just impose its own order
	// anyway.
	if sortby, err := cmd.LocalFlags().GetString("sort-by"); err == nil && sortby != "" {
		prn, err = klo.NewSortingPrinter(sortby, prn)
		if err != nil {
			return err
		}
	}
	ps := make([]*api.PlanStep, 0, len(steps))
	for idx := range steps {
		log.Debugf("step %d: %s %s via %s", steps[idx].Step, steps[idx].Kind, steps[idx].Address, steps[idx].Via)
		ps = append(ps, &steps[idx])
	}
	prn.Fprint(w, ps)
	return nil
}

// lookupNode returns the node hosting the capture target, if the transport
// is able to tell. Failing to look up the node isn't fatal.
func lookupNode(ctx context.Context, plan kcap.TransportPlan) string {
	if chain, ok := plan.(kcap.ShellChain); ok {
		return chain.Final.Host
	}
	exec, err := Connect(ctx, plan)
	if err != nil {
		log.Warnf("cannot look up node: %s", err)
		return ""
	}
	defer exec.Close()
	namer, ok := exec.(NodeNamer)
	if !ok {
		return ""
	}
	node, err := namer.NodeName(ctx)
	if err != nil {
		log.Warnf("cannot look up node: %s", err)
		return ""
	}
	return node
}

// getPrinter returns a value printer configured according to the output format
// chosen by the user, and some more optional output configuration flags.
func getPrinter(cmd *cobra.Command) (prn klo.ValuePrinter, err error) {
	outfmt, err := cmd.LocalFlags().GetString("output")
	if err != nil {
		return
	}
	if outfmt == "name" {
		// Support "-o name" output format which uses our builtin
		// custom-columns template to only show step addresses, and hide the
		// column header.
		prn, err = klo.PrinterFromFlag("custom-columns="+NameTemplate, nil)
		if err != nil {
			panic(err)
		}
		prn.(*klo.CustomColumnsPrinter).HideHeaders = true
	} else {
		// For the other output format option, let the kubectl-like output
		// package handle the details and give us just the printer suitable for
		// dumping the plan steps onto our users.
		prn, err = klo.PrinterFromFlag(outfmt, &klo.Specs{
			DefaultColumnSpec: PlanTemplate,
			WideColumnSpec:    PlanWideTemplate,
		})
		if err != nil {
			return
		}
		if ccprn, ok := prn.(*klo.CustomColumnsPrinter); ok {
			ccprn.Padding = 3
			if noheaders, err := cmd.LocalFlags().GetBool("no-headers"); err == nil {
				ccprn.HideHeaders = noheaders
			}
		}
	}
	return
}
