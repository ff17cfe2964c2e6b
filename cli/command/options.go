// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package command

import (
	"github.com/siemens/kcap/cli"
	"github.com/spf13/cobra"
	"github.com/thediveo/go-plugger/v3"
)

// Provides the "kcap options" command which gives information about the
// available global CLI flags/options, including the ones contributed by the
// target plugins. This is modelled after what kubectl, etc. have on offer.
var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "List of global command-line options which apply to all commands.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Usage()
	},
}

// optionsUsageTemplate replaces cobra's builtin usage template which
// doesn't quite fit in this special usecase for listing only the global
// options.
var optionsUsageTemplate = `{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}
`

func init() {
	plugger.Group[cli.SetupCLI]().Register(OptionsSetupCLI, plugger.WithPlugin("options"))
}

// OptionsSetupCLI adds the "options" command.
func OptionsSetupCLI(cmd *cobra.Command) {
	cmd.AddCommand(optionsCmd)
	optionsCmd.SetUsageTemplate(optionsUsageTemplate)
}
