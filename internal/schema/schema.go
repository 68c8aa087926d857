// Package schema describes the command tree in machine-readable form.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Command annotations read by Build.
const (
	AnnotationClass = "preptools.class"
	AnnotationRPC   = "preptools.rpc"
)

type CommandSchema struct {
	Path        string          `json:"path"`
	Use         string          `json:"use"`
	Short       string          `json:"short"`
	Class       string          `json:"class,omitempty"`
	RPCMethods  []string        `json:"rpc_methods,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

type FlagSchema struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
	Required  bool   `json:"required,omitempty"`
	Inherited bool   `json:"inherited,omitempty"`
}

// Build describes root, or the subcommand named by commandPath. Command
// names match case-insensitively.
func Build(root *cobra.Command, commandPath string) (CommandSchema, error) {
	cmd := root
	for _, p := range strings.Fields(commandPath) {
		next := findChild(cmd, p)
		if next == nil {
			return CommandSchema{}, fmt.Errorf("command not found: %s", commandPath)
		}
		cmd = next
	}
	return serialize(cmd), nil
}

func findChild(cmd *cobra.Command, name string) *cobra.Command {
	for _, c := range cmd.Commands() {
		if strings.EqualFold(c.Name(), name) {
			return c
		}
		for _, alias := range c.Aliases {
			if strings.EqualFold(alias, name) {
				return c
			}
		}
	}
	return nil
}

func serialize(cmd *cobra.Command) CommandSchema {
	s := CommandSchema{
		Path:  strings.TrimSpace(cmd.CommandPath()),
		Use:   cmd.Use,
		Short: cmd.Short,
		Class: cmd.Annotations[AnnotationClass],
		Flags: collectFlags(cmd),
	}
	if methods := cmd.Annotations[AnnotationRPC]; methods != "" {
		s.RPCMethods = strings.Split(methods, ",")
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		s.Subcommands = append(s.Subcommands, serialize(sub))
	}
	return s
}

func collectFlags(cmd *cobra.Command) []FlagSchema {
	items := []FlagSchema{}
	add := func(f *pflag.Flag, inherited bool) {
		_, required := f.Annotations[cobra.BashCompOneRequiredFlag]
		items = append(items, FlagSchema{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Type:      f.Value.Type(),
			Usage:     f.Usage,
			Default:   f.DefValue,
			Required:  required,
			Inherited: inherited,
		})
	}
	cmd.LocalNonPersistentFlags().VisitAll(func(f *pflag.Flag) { add(f, false) })
	if cmd.HasParent() {
		cmd.InheritedFlags().VisitAll(func(f *pflag.Flag) { add(f, true) })
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Inherited != items[j].Inherited {
			return !items[i].Inherited
		}
		return items[i].Name < items[j].Name
	})
	return items
}
