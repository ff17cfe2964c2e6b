// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package command

import (
	"github.com/siemens/kcap"
	"github.com/siemens/kcap/cli"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/thediveo/go-plugger/v3"
)

// enable debug log output.
var enable bool

// quiet limits log output to warnings and errors.
var quiet bool

func init() {
	plugger.Group[cli.SetupCLI]().Register(DebugSetupCLI, plugger.WithPlugin("debug"))
	plugger.Group[cli.BeforeCommand]().Register(DebugBeforeCommand, plugger.WithPlugin("debug"))
}

// DebugSetupCLI registers the “--debug” and “--quiet” CLI flags.
func DebugSetupCLI(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&enable, "debug", "d", false, "Enable debug output")
	Annotate(pf, "debug", MutualFlagGroupAnnotation, VerbosityGroup)
	pf.BoolVarP(&quiet, "quiet", "q", false, "Only output warnings and errors")
	Annotate(pf, "quiet", MutualFlagGroupAnnotation, VerbosityGroup)
}

// DebugBeforeCommand sets the log level as requested via the “--debug” or
// “--quiet” flags.
func DebugBeforeCommand(*cobra.Command) error {
	switch {
	case enable:
		log.SetLevel(log.DebugLevel)
		log.Debugf("kcap version %s", kcap.SemVersion)
	case quiet:
		log.SetLevel(log.WarnLevel)
	}
	return nil
}
