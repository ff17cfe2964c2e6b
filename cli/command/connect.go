// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package command

import (
	"context"
	"errors"
	"strings"

	"github.com/siemens/kcap"
	"github.com/siemens/kcap/cli"
	"github.com/thediveo/go-plugger/v3"
)

// ResolveTarget collects the capture target parameters from the registered
// plugins and resolves them into a transport plan.
func ResolveTarget() (kcap.TransportPlan, error) {
	params := kcap.TargetParams{}
	for _, targetParams := range plugger.Group[cli.TargetParams]().Symbols() {
		if err := targetParams(&params); err != nil {
			return nil, err
		}
	}
	return kcap.Resolve(params)
}

// Connect establishes the transport for the specified plan by asking the
// registered connect plugins one after another until the first one returns
// an executor or an error.
func Connect(ctx context.Context, plan kcap.TransportPlan) (kcap.Executor, error) {
	for _, connect := range plugger.Group[cli.Connect]().Symbols() {
		exec, err := connect(ctx, plan)
		if err != nil {
			return nil, err
		}
		if exec != nil {
			return exec, nil
		}
	}
	plugins := strings.Join(plugger.Group[cli.Connect]().Plugins(), ", ")
	if plugins == "" {
		plugins = "(none)"
	}
	return nil, errors.New("no suitable transport for " + plan.Target().String() +
		"; available transports: " + plugins)
}

// NodeNamer is implemented by executors that can tell the node hosting
// their capture target.
type NodeNamer interface {
	NodeName(ctx context.Context) (string, error)
}
