package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/platinummonkey/rbacabac/pkg/policy"
)

func newPoliciesCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "policies",
		Description: "List the built-in policies",
		Flags:       newFlagSet("policies"),
	}

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		reg := policy.NewRegistry(policy.WithRegistryLogger(env.Logger))
		if err := policy.RegisterDefaults(reg); err != nil {
			return err
		}

		w := tabwriter.NewWriter(env.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tKIND\tFILTER\tDEFINITION")
		for _, name := range reg.List() {
			p, err := reg.Get(name)
			if err != nil {
				return err
			}
			kind := "func"
			switch {
			case p.IsComposite():
				kind = "composite"
			case p.Condition != nil:
				kind = "condition"
			}
			hasFilter := "no"
			if p.HasFilter() {
				hasFilter = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, kind, hasFilter, p.Describe())
		}
		return w.Flush()
	}
	return cmd
}
