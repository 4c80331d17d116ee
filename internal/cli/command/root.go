package command

import (
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/chatmesh-go/internal/cli/connection"
	"github.com/yndnr/chatmesh-go/internal/cli/output"
	"github.com/yndnr/chatmesh-go/internal/infra/buildinfo"
)

const programName = "chatmesh-cli"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    programName,
		Usage:   "ChatMesh command-line tool",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			SessionCommand(),
			SystemCommand(),
		},
		Before: func(c *cli.Context) error {
			_, err := output.ParseFormat(c.String("output"))
			return err
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "ChatMesh server address (e.g., localhost:5080)",
			EnvVars: []string{"CHATMESH_SERVER"},
			Value:   "localhost:5080",
		},
		&cli.StringFlag{
			Name:    "admin-token",
			Usage:   "Admin bearer token (required by the session commands)",
			EnvVars: []string{"CHATMESH_ADMIN_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Request timeout",
			Value: connection.DefaultTimeout,
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Server     string
	AdminToken string
	Output     output.Format
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	format, _ := output.ParseFormat(c.String("output"))
	return &GlobalFlags{
		Server:     c.String("server"),
		AdminToken: c.String("admin-token"),
		Output:     format,
	}
}

// Client returns an HTTP client for the selected server.
func Client(c *cli.Context) *connection.HTTPClient {
	flags := ParseGlobalFlags(c)
	opts := []connection.Option{connection.WithUserAgent(buildinfo.UserAgent(programName))}
	if flags.AdminToken != "" {
		opts = append(opts, connection.WithAdminToken(flags.AdminToken))
	}
	if d := c.Duration("timeout"); d > 0 {
		opts = append(opts, connection.WithTimeout(d))
	}
	return connection.NewHTTPClient(flags.Server, opts...)
}

// Print writes data in the selected output format.
func Print(c *cli.Context, data any) error {
	return output.NewFormatter(ParseGlobalFlags(c).Output).Format(writer(c), data)
}

func writer(c *cli.Context) io.Writer {
	if c.App != nil && c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}
