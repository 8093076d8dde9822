package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// NewRootCommand creates the grantctl root command writing results to out
func NewRootCommand(out io.Writer) *Command {
	if out == nil {
		out = os.Stdout
	}

	root := &Command{
		Name:        "grantctl",
		Description: "grantctl - manage principal permissions",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("grantctl", flag.ContinueOnError),
	}

	root.Subcommands["get"] = newGetCommand(out)
	root.Subcommands["set"] = newSetCommand(out)
	root.Subcommands["reset"] = newResetCommand(out)
	root.Subcommands["audit"] = newAuditCommand(out)
	root.Subcommands["keys"] = newKeysCommand(out)

	return root
}

// Execute runs the subcommand named by args[0]
func (c *Command) Execute(args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		return c.usage(out)
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage(out io.Writer) error {
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(out, "Commands:\n")
	for _, name := range names {
		fmt.Fprintf(out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

// connectionFlags are shared by every command that talks to grantd
type connectionFlags struct {
	server       *string
	as           *string
	email        *string
	token        *string
	tokenURL     *string
	clientID     *string
	clientSecret *string
}

func addConnectionFlags(fs *flag.FlagSet) connectionFlags {
	return connectionFlags{
		server: fs.String("server", envOr("GRANT_SERVER", "http://localhost:8080"), "grantd base URL"),
		as:     fs.String("as", os.Getenv("GRANT_ACTOR"), "Acting principal id (header authentication)"),
		email:  fs.String("email", os.Getenv("GRANT_ACTOR_EMAIL"), "Acting principal email (header authentication)"),
		token:  fs.String("token", os.Getenv("GRANT_TOKEN"), "Bearer token (OIDC authentication)"),

		tokenURL:     fs.String("token-url", os.Getenv("GRANT_TOKEN_URL"), "OAuth2 token endpoint for the client credentials grant"),
		clientID:     fs.String("client-id", os.Getenv("GRANT_CLIENT_ID"), "OAuth2 client id"),
		clientSecret: fs.String("client-secret", os.Getenv("GRANT_CLIENT_SECRET"), "OAuth2 client secret"),
	}
}

func (f connectionFlags) client() *Client {
	opts := []ClientOption{WithActor(*f.as, *f.email), WithToken(*f.token)}
	if *f.tokenURL != "" {
		opts = append(opts, WithTokenSource(ClientCredentials(*f.tokenURL, *f.clientID, *f.clientSecret, "openid")))
	}
	return NewClient(*f.server, opts...)
}

func envOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
