// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package command

import (
	"fmt"
	"io"
	"strings"

	"github.com/siemens/kcap"
	"github.com/siemens/kcap/cli"
	"github.com/spf13/cobra"
	"github.com/thediveo/go-plugger/v3"
)

// Provides the “kcap version” command. The semantic version is the one
// defined for the main kcap package, so there's no separate version number
// for the kcap CLI command. In addition, the version command lists the
// included transports.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version (with integrated transports).",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd.OutOrStdout(), cmd.Parent().Name())
	},
}

func init() {
	plugger.Group[cli.SetupCLI]().Register(
		VersionSetupCLI, plugger.WithPlugin("version"))
}

// VersionSetupCLI adds the “version” command.
func VersionSetupCLI(cmd *cobra.Command) {
	cmd.AddCommand(versionCmd)
}

func printVersion(w io.Writer, name string) {
	semver := kcap.SemVersion
	for _, pluginsemver := range plugger.Group[cli.SemVer]().Symbols() {
		semver = pluginsemver()
		break
	}
	transports := strings.Join(plugger.Group[cli.Connect]().Plugins(), ", ")
	if transports == "" {
		transports = "none"
	}
	fmt.Fprintf(w, "%s version %s (transports: %s)\n", name, semver, transports)
}
