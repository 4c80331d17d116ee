package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/chatmesh-go/internal/cli/connection"
	"github.com/yndnr/chatmesh-go/internal/cli/output"
)

// SystemCommand returns the system subcommand group.
func SystemCommand() *cli.Command {
	return &cli.Command{
		Name:    "system",
		Aliases: []string{"sys"},
		Usage:   "Server health checks",
		Subcommands: []*cli.Command{
			{
				Name:   "health",
				Usage:  "Check that the server is up",
				Action: systemCheck("/health"),
			},
			{
				Name:   "ready",
				Usage:  "Check that the server can reach its shared store",
				Action: systemCheck("/ready"),
			},
		},
	}
}

func systemCheck(path string) cli.ActionFunc {
	return func(c *cli.Context) error {
		client := Client(c)
		resp, err := client.Get(c.Context, path)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		var result map[string]any
		if err := connection.ParseResponse(resp, &result); err != nil {
			return err
		}

		kv := output.KeyValues{{Key: "server", Value: client.BaseURL()}}
		for _, key := range []string{"status", "version", "time"} {
			if v, ok := result[key]; ok {
				kv = append(kv, output.KeyValue{Key: key, Value: v})
			}
		}
		return Print(c, kv)
	}
}
