package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/chatmesh-go/internal/cli/connection"
	"github.com/yndnr/chatmesh-go/internal/cli/output"
)

// SessionCommand returns the session subcommand group.
func SessionCommand() *cli.Command {
	userFlag := &cli.StringFlag{
		Name:     "user-id",
		Aliases:  []string{"u"},
		Usage:    "User ID",
		Required: true,
	}
	return &cli.Command{
		Name:    "session",
		Aliases: []string{"sess"},
		Usage:   "Manage user sessions",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Log a user in, replacing any session the user holds",
				Flags: []cli.Flag{
					userFlag,
					&cli.StringFlag{Name: "device-id", Usage: "Device ID recorded with the session"},
					&cli.StringSliceFlag{
						Name:    "meta",
						Aliases: []string{"m"},
						Usage:   "Session metadata as KEY=VALUE pairs",
					},
				},
				Action: sessionCreate,
			},
			{
				Name:      "validate",
				Usage:     "Check whether a session is the user's live session",
				ArgsUsage: "SESSION_ID",
				Flags: []cli.Flag{
					userFlag,
					&cli.BoolFlag{Name: "touch", Usage: "Record activity when valid"},
				},
				Action: sessionValidate,
			},
			{
				Name:   "touch",
				Usage:  "Record activity on the user's session",
				Flags:  []cli.Flag{userFlag},
				Action: sessionTouch,
			},
			{
				Name:      "remove",
				Aliases:   []string{"logout"},
				Usage:     "Remove the user's session",
				ArgsUsage: "[SESSION_ID]",
				Flags:     []cli.Flag{userFlag},
				Action:    sessionRemove,
			},
		},
	}
}

type createResult struct {
	SessionID string `json:"session_id"`
	ExpiresIn int64  `json:"expires_in"`
	ExpiresAt int64  `json:"expires_at"`
}

type validateResult struct {
	Valid         bool   `json:"valid"`
	Code          string `json:"code,omitempty"`
	Message       string `json:"message,omitempty"`
	RequiresLogin bool   `json:"requires_login,omitempty"`
	ExpiresAt     int64  `json:"expires_at,omitempty"`
	LastActivity  int64  `json:"last_activity,omitempty"`
}

func sessionCreate(c *cli.Context) error {
	meta, err := parseKeyValues(c.StringSlice("meta"))
	if err != nil {
		return err
	}
	body := map[string]any{"user_id": c.String("user-id")}
	if d := c.String("device-id"); d != "" {
		body["device_id"] = d
	}
	if len(meta) > 0 {
		body["metadata"] = meta
	}

	resp, err := Client(c).Post(c.Context, "/sessions", body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var res createResult
	if err := connection.ParseResponse(resp, &res); err != nil {
		return err
	}
	return Print(c, output.KeyValues{
		{Key: "session_id", Value: res.SessionID},
		{Key: "expires_in", Value: res.ExpiresIn},
		{Key: "expires_at", Value: formatMillis(res.ExpiresAt)},
	})
}

func sessionValidate(c *cli.Context) error {
	sessionID := c.Args().First()
	if sessionID == "" {
		return fmt.Errorf("SESSION_ID is required")
	}

	resp, err := Client(c).Post(c.Context, "/sessions/validate", map[string]any{
		"user_id":    c.String("user-id"),
		"session_id": sessionID,
		"touch":      c.Bool("touch"),
	})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var res validateResult
	if err := connection.ParseResponse(resp, &res); err != nil {
		return err
	}

	kv := output.KeyValues{{Key: "valid", Value: res.Valid}}
	if res.Valid {
		kv = append(kv,
			output.KeyValue{Key: "expires_at", Value: formatMillis(res.ExpiresAt)},
			output.KeyValue{Key: "last_activity", Value: formatMillis(res.LastActivity)},
		)
	} else {
		kv = append(kv,
			output.KeyValue{Key: "code", Value: res.Code},
			output.KeyValue{Key: "message", Value: res.Message},
			output.KeyValue{Key: "requires_login", Value: res.RequiresLogin},
		)
	}
	return Print(c, kv)
}

func sessionTouch(c *cli.Context) error {
	resp, err := Client(c).Post(c.Context, "/sessions/touch", map[string]string{"user_id": c.String("user-id")})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if err := connection.ParseResponse(resp, nil); err != nil {
		return err
	}
	fmt.Fprintln(writer(c), "session touched")
	return nil
}

func sessionRemove(c *cli.Context) error {
	resp, err := Client(c).Post(c.Context, "/sessions/remove", map[string]string{
		"user_id":    c.String("user-id"),
		"session_id": c.Args().First(),
	})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if err := connection.ParseResponse(resp, nil); err != nil {
		return err
	}
	fmt.Fprintln(writer(c), "session removed")
	return nil
}

// parseKeyValues parses KEY=VALUE pairs.
func parseKeyValues(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid metadata %q, want KEY=VALUE", p)
		}
		out[k] = v
	}
	return out, nil
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
