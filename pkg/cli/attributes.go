package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/platinummonkey/rbacabac/pkg/attributes"
	"github.com/platinummonkey/rbacabac/pkg/authz"
	"github.com/platinummonkey/rbacabac/pkg/config"
	"github.com/platinummonkey/rbacabac/pkg/filter"
	"github.com/platinummonkey/rbacabac/pkg/policy"
)

func newAttributesCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "attributes",
		Description: "Show the attribute bundle a service sees for a user",
		Flags:       newFlagSet("attributes"),
	}
	cmd.Flags.String("user", "", "User ID")
	cmd.Flags.String("service", "", "Service name (defaults to the configured service)")
	cmd.Flags.Bool("refresh", false, "Invalidate the cached bundle before reading")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		refresh, _ := cmd.Flags.GetBool("refresh")

		attrs, _, err := env.fetchAttributes(ctx, cmd.Flags, func(store *attributes.Store, user, service string) error {
			if !refresh {
				return nil
			}
			return store.Invalidate(ctx, user, service)
		})
		if err != nil {
			return err
		}
		return env.printJSON(attrs)
	}
	return cmd
}

func newCheckCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "check",
		Description: "Evaluate a policy for a user against an object",
		Flags:       newFlagSet("check"),
	}
	cmd.Flags.String("user", "", "User ID")
	cmd.Flags.String("service", "", "Service name (defaults to the configured service)")
	cmd.Flags.String("policy", "", "Policy name")
	cmd.Flags.String("action", "check", "Action the policy is bound to")
	cmd.Flags.String("object", "{}", `Object fields as JSON, e.g. {"owner_id":"u1"}`)

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		policyName, action, err := policyFlags(cmd.Flags)
		if err != nil {
			return err
		}
		rawObject, _ := cmd.Flags.GetString("object")
		var object filter.MapRecord
		if err := json.Unmarshal([]byte(rawObject), &object); err != nil {
			return fmt.Errorf("invalid --object: %w", err)
		}

		attrs, cfg, err := env.fetchAttributes(ctx, cmd.Flags, nil)
		if err != nil {
			return err
		}
		evaluator, closeAudit, err := env.evaluator(cfg)
		if err != nil {
			return err
		}
		defer closeAudit()

		d := evaluator.Decide(ctx, attrs, object, action, authz.Binding{action: policyName})
		out := map[string]any{
			"allowed": d.Allowed,
			"action":  d.Action,
			"policy":  d.Policy,
			"reason":  d.Reason,
			"user_id": d.UserID,
			"service": d.Service,
		}
		if d.Err != nil {
			out["error"] = d.Err.Error()
		}
		return env.printJSON(out)
	}
	return cmd
}

func newFilterCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "filter",
		Description: "Print the query filter a policy compiles to for a user",
		Flags:       newFlagSet("filter"),
	}
	cmd.Flags.String("user", "", "User ID")
	cmd.Flags.String("service", "", "Service name (defaults to the configured service)")
	cmd.Flags.String("policy", "", "Policy name")
	cmd.Flags.String("action", "list", "Action the policy is bound to")
	cmd.Flags.String("dialect", "postgres", "Placeholder dialect: postgres, sqlite or mysql")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		policyName, action, err := policyFlags(cmd.Flags)
		if err != nil {
			return err
		}
		dialectName, _ := cmd.Flags.GetString("dialect")
		var dialect filter.Dialect
		switch dialectName {
		case "postgres":
			dialect = filter.Dollar
		case "sqlite":
			dialect = filter.Question
		case "mysql":
			dialect = filter.Backtick
		default:
			return fmt.Errorf("unknown dialect: %s", dialectName)
		}

		attrs, cfg, err := env.fetchAttributes(ctx, cmd.Flags, nil)
		if err != nil {
			return err
		}
		evaluator, closeAudit, err := env.evaluator(cfg)
		if err != nil {
			return err
		}
		defer closeAudit()

		pred, err := evaluator.CompileFilter(ctx, attrs, action, authz.Binding{action: policyName})
		if errors.Is(err, policy.ErrNoFilterAvailable) {
			fmt.Fprintf(env.Out, "policy %s has no filter form; rows must be checked in process\n", policyName)
			return nil
		}
		if err != nil {
			return err
		}

		where, sqlArgs, err := filter.ToSQL(pred, dialect)
		if err != nil {
			return fmt.Errorf("failed to render filter: %w", err)
		}
		return env.printJSON(map[string]any{
			"predicate": pred.String(),
			"where":     where,
			"args":      sqlArgs,
		})
	}
	return cmd
}

func policyFlags(fs *pflag.FlagSet) (string, string, error) {
	name, _ := fs.GetString("policy")
	action, _ := fs.GetString("action")
	if name == "" {
		return "", "", fmt.Errorf("--policy is required")
	}
	if action == "" {
		return "", "", fmt.Errorf("--action cannot be empty")
	}
	return name, action, nil
}

// fetchAttributes loads the bundle for --user/--service through the cache. before runs
// ahead of the read when set.
func (e *Env) fetchAttributes(ctx context.Context, fs *pflag.FlagSet, before func(*attributes.Store, string, string) error) (*attributes.UserAttributes, *config.Config, error) {
	user, _ := fs.GetString("user")
	if user == "" {
		return nil, nil, fmt.Errorf("--user is required")
	}

	cfg, err := e.loadConfig(fs)
	if err != nil {
		return nil, nil, err
	}
	service, err := resolveService(fs, cfg)
	if err != nil {
		return nil, nil, err
	}

	store, cleanup, err := e.openStore(ctx, cfg, true)
	if err != nil {
		return nil, nil, err
	}
	defer cleanup()

	if before != nil {
		if err := before(store, user, service); err != nil {
			return nil, nil, err
		}
	}

	attrs, err := store.GetUserAttributes(ctx, user, service)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load attributes: %w", err)
	}
	return attrs, cfg, nil
}
