// Package playbook builds and runs ansible-playbook invocations
package playbook

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/thc1006/nmeta-systemtest/pkg/security"
)

// DefaultBinary is the automation tool invoked when none is configured
const DefaultBinary = "ansible-playbook"

// Extra variable names shared with the playbooks
const (
	VarResultsDir    = "results_dir"
	VarPolicyName    = "policy_name"
	VarDuration      = "duration"
	VarPause1        = "pause1"
	VarPause2        = "pause2"
	VarPause3        = "pause3"
	VarTCPPort       = "tcp_port"
	VarCount         = "count"
	VarErrorFilename = "error_filename"
)

// Vars are the extra variables passed to a playbook
type Vars map[string]string

// Keys returns the variable names in sorted order
func (v Vars) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Encode serializes the variables as "k1=v1 k2=v2". Values are not escaped,
// call Validate first when they do not come from a fixed set.
func (v Vars) Encode() string {
	pairs := make([]string, 0, len(v))
	for _, k := range v.Keys() {
		pairs = append(pairs, k+"="+v[k])
	}
	return strings.Join(pairs, " ")
}

// Validate checks that every pair survives Encode unchanged
func (v Vars) Validate() error {
	for _, k := range v.Keys() {
		if err := security.ValidateExtraVarKey(k); err != nil {
			return err
		}
		if err := security.ValidateExtraVarValue(v[k]); err != nil {
			return fmt.Errorf("variable %s: %w", k, err)
		}
	}
	return nil
}

// Command is a fully resolved playbook invocation
type Command struct {
	Binary   string `json:"binary"`
	Name     string `json:"name"`
	Playbook string `json:"playbook"`
	Vars     Vars   `json:"vars,omitempty"`
}

// BuildCommand resolves name against dir and attaches vars
func BuildCommand(binary, dir, name string, vars Vars) Command {
	if binary == "" {
		binary = DefaultBinary
	}
	return Command{
		Binary:   binary,
		Name:     name,
		Playbook: filepath.Join(dir, name),
		Vars:     vars,
	}
}

// Args returns the argument vector passed to the binary
func (c Command) Args() []string {
	args := []string{c.Playbook}
	if len(c.Vars) > 0 {
		args = append(args, "--extra-vars", c.Vars.Encode())
	}
	return args
}

// String renders the command the way it would be typed in a shell
func (c Command) String() string {
	s := c.Binary + " " + c.Playbook
	if len(c.Vars) > 0 {
		s += ` --extra-vars "` + c.Vars.Encode() + `"`
	}
	return s
}
