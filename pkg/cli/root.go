package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/pflag"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, args []string) error
	Subcommands map[string]*Command
	Flags       *pflag.FlagSet
}

// NewRootCommand creates the root command
func NewRootCommand(env *Env) *Command {
	root := &Command{
		Name:        "authzctl",
		Description: "authzctl - operate the RBAC/ABAC attribute cache and policies",
		Subcommands: make(map[string]*Command),
		Flags:       pflag.NewFlagSet("authzctl", pflag.ContinueOnError),
	}

	for _, cmd := range []*Command{
		newInvalidateCommand(env),
		newAttributesCommand(env),
		newCheckCommand(env),
		newFilterCommand(env),
		newPoliciesCommand(env),
		newHealthCommand(env),
		newWatchCommand(env),
	} {
		root.Subcommands[cmd.Name] = cmd
	}

	return root
}

// Execute runs the subcommand named by args[0]
func (c *Command) Execute(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		return c.usage(out)
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(ctx, args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage(out io.Writer) error {
	fmt.Fprintf(out, "Usage: %s <command> [flags]\n\n", c.Name)
	fmt.Fprintf(out, "Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

// newFlagSet creates a subcommand flag set with the shared --config flag
func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "YAML config file (environment variables override it)")
	return fs
}
