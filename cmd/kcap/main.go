// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

// This is the main entry of the kcap CLI tool. There isn't actually much here
// to do except for running the kcap "root" command which will parse the CLI
// args and then hopefully invoke the correct command, and finally to map
// errors onto process exit codes.

package main

import (
	"os"

	// Pull in all command packages which define sub-commands: they will
	// register themselves as needed, but we need the packages to get included,
	// as otherwise there are no references in the code which could pull them
	// in anyway.
	"github.com/siemens/kcap"
	"github.com/siemens/kcap/cli/command"
	_ "github.com/siemens/kcap/cli/command/capture"

	_ "github.com/siemens/kcap/cli/node" // SSH to nodes, with jump hosts
	_ "github.com/siemens/kcap/cli/pod"  // kubectl exec into pods

	log "github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

func main() {
	// Establish logger output format in case we're hitting errors, et cetera.
	// Logging goes to stderr, as stdout might carry the capture stream.
	f := new(prefixed.TextFormatter)
	f.DisableColors = true
	f.ForceFormatting = true
	f.FullTimestamp = true
	f.TimestampFormat = "15:04:05"
	log.SetFormatter(f)
	log.SetOutput(os.Stderr)

	// This is cobra boilerplate documentation, except for the missing call to
	// fmt.Println(err) which in the original boilerplate is just plain wrong:
	// it renders the error message twice, see also:
	// https://github.com/spf13/cobra/issues/304
	if err := command.SetupCLI().Execute(); err != nil {
		os.Exit(kcap.ExitCode(err))
	}
}
