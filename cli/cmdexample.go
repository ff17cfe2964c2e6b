// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package cli

import (
	"strings"

	"github.com/thediveo/go-plugger/v3"
)

// Examples collects all examples for the specified command from the registered
// plugins, in plugin order. The examples returned by plugins are always
// separated by empty lines, yet there isn't any trailing newline for the
// overall section.
func Examples(command string) string {
	return joinExamples(command, plugger.Group[CommandExamples]().Symbols())
}

func joinExamples(command string, sources []CommandExamples) string {
	examples := []string{}
	for _, source := range sources {
		text := strings.Trim(source()[command], "\n")
		if text == "" {
			continue
		}
		examples = append(examples, text)
	}
	return strings.Join(examples, "\n\n")
}
