package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/rbacabac/pkg/observability"
)

func newHealthCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "health",
		Description: "Check the cache and role source",
		Flags:       newFlagSet("health"),
	}

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		cfg, err := env.loadConfig(cmd.Flags)
		if err != nil {
			return err
		}

		client, err := env.OpenCache(ctx, cfg.Redis)
		if err != nil {
			env.printJSON(observability.HealthStatus{
				Status: observability.StatusUnhealthy,
				Dependencies: map[string]observability.DependencyStatus{
					observability.DependencyCache: {Status: observability.StatusUnhealthy, Message: err.Error()},
				},
			})
			return fmt.Errorf("unhealthy")
		}
		defer client.Close()

		var db *sql.DB
		if cfg.RoleSource.PostgresURL != "" {
			db, err = env.OpenRoleSource(cfg.RoleSource)
			if err != nil {
				return err
			}
			defer db.Close()
		}

		status := observability.NewHealthChecker(client, db).Check(ctx)
		if err := env.printJSON(status); err != nil {
			return err
		}
		if status.Status == observability.StatusUnhealthy {
			return fmt.Errorf("unhealthy")
		}
		return nil
	}
	return cmd
}
