// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package cli

import (
	"context"

	"github.com/siemens/kcap"
	"github.com/spf13/cobra"
)

// SetupCLI defines an exposed plugin symbol type for adding “things” to a
// cobra root command (the kcap root command in particular).
type SetupCLI func(*cobra.Command)

// CommandExamples defines an exposed symbol with CLI examples, indexed by a
// particular (sub) command, namely: “plan” and “capture” at this time.
type CommandExamples func() map[string]string

// BeforeCommand defines an exposed plugin symbol type for running checks after
// the command line args have been processed and before running the (choosen)
// command.
type BeforeCommand func(*cobra.Command) error

// TargetParams defines an exposed plugin symbol type for filling in the
// capture target parameters from the CLI args. Plugins only fill in the
// parameters they are responsible for; a non-nil error aborts the command.
type TargetParams func(*kcap.TargetParams) error

// Connect defines an exposed plugin symbol type for establishing the
// transport of a resolved transport plan. If a registered plugin isn't
// responsible for the kind of plan, it must return a nil executor as well as
// a nil error. If a plugin returns a non-nil error, the attempt to find a
// suitable plugin will be aborted and the returned error reported to the CLI
// user.
type Connect func(context.Context, kcap.TransportPlan) (kcap.Executor, error)

// SemVer defines an exposed plugin symbol type for returning (overriding) the
// CLI binary's semantic version. The first plugin will win.
type SemVer func() string
