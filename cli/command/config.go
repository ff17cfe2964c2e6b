// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package command

import (
	"github.com/siemens/kcap/cli"
	"github.com/siemens/kcap/config"
	"github.com/spf13/cobra"
	"github.com/thediveo/go-plugger/v3"
)

// configPath is the configuration profile to load.
var configPath string

// profile is the loaded configuration; it stays empty until the command runs.
var profile = &config.Config{}

func init() {
	plugger.Group[cli.SetupCLI]().Register(ConfigSetupCLI, plugger.WithPlugin("config"))
	// Configured defaults might well switch on debug output, so the profile
	// needs to be loaded before any other plugin looks at its flags.
	plugger.Group[cli.BeforeCommand]().Register(ConfigBeforeCommand,
		plugger.WithPlugin("config"), plugger.WithPlacement("<"))
}

// ConfigSetupCLI registers the “--config” CLI flag.
func ConfigSetupCLI(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(),
		"Configuration profile with flag defaults, identities, and jump hosts")
}

// ConfigBeforeCommand loads the configuration profile and applies its flag
// defaults to the flags not given on the command line. A missing profile is
// only an error when explicitly asked for via “--config”.
func ConfigBeforeCommand(cmd *cobra.Command) error {
	explicit := false
	if flag := cmd.Flags().Lookup("config"); flag != nil {
		explicit = flag.Changed
	}
	c, err := config.Load(configPath, explicit)
	if err != nil {
		return err
	}
	profile = c
	return profile.ApplyDefaults(cmd.Flags())
}

// Profile returns the loaded configuration profile.
func Profile() *config.Config { return profile }
