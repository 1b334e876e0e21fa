package cli

import (
	"context"
	"fmt"

	"github.com/platinummonkey/rbacabac/pkg/attributes"
)

func newInvalidateCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "invalidate",
		Description: "Drop a user's cached attributes in every process",
		Flags:       newFlagSet("invalidate"),
	}
	cmd.Flags.String("user", "", "User ID")
	cmd.Flags.String("service", "", "Service name (all services when empty)")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		user, _ := cmd.Flags.GetString("user")
		service, _ := cmd.Flags.GetString("service")
		if user == "" {
			return fmt.Errorf("--user is required")
		}

		cfg, err := env.loadConfig(cmd.Flags)
		if err != nil {
			return err
		}
		store, cleanup, err := env.openStore(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := store.Invalidate(ctx, user, service); err != nil {
			return fmt.Errorf("failed to invalidate: %w", err)
		}

		if service == "" {
			service = attributes.Wildcard
		}
		fmt.Fprintf(env.Out, "invalidated %s/%s\n", user, service)
		return nil
	}
	return cmd
}
