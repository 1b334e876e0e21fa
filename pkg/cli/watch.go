package cli

import (
	"context"
	"fmt"

	"github.com/platinummonkey/rbacabac/pkg/attributes"
)

func newWatchCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "watch",
		Description: "Print invalidation messages as they are published",
		Flags:       newFlagSet("watch"),
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
			return err
		}
		defer client.Close()

		messages := make(chan attributes.Invalidation, 64)
		listener := attributes.NewListener(client, cfg.Cache.Channel, func(msg attributes.Invalidation) {
			select {
			case messages <- msg:
			default:
				env.Logger.WithField("user_id", msg.UserID).Warn("dropping invalidation, output is too slow")
			}
		}, attributes.WithListenerLogger(env.Logger))

		done := make(chan error, 1)
		go func() { done <- listener.Run(ctx) }()

		for {
			select {
			case msg := <-messages:
				origin := msg.Origin
				if origin == "" {
					origin = "-"
				}
				fmt.Fprintf(env.Out, "%s\t%s\t%s\t%s\n", msg.IssuedAt.Format("2006-01-02T15:04:05.000Z07:00"), msg.UserID, msg.Service, origin)
			case err := <-done:
				return err
			}
		}
	}
	return cmd
}
