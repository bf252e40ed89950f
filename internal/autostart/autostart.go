// Package autostart registers the agent to launch at user login.
package autostart

import (
	"strings"
)

// Entry describes what to launch at login.
type Entry struct {
	Name       string
	Executable string
	Args       []string
}

// Command renders the entry as a single command line with the executable
// quoted.
func (e Entry) Command() string {
	command := `"` + e.Executable + `"`
	if len(e.Args) > 0 {
		command += " " + strings.Join(e.Args, " ")
	}
	return command
}
