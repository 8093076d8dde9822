package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

const requestTimeout = 30 * time.Second

func newGetCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "get",
		Description: "Show a principal's role and permission overrides",
		Flags:       flag.NewFlagSet("get", flag.ContinueOnError),
	}
	conn := addConnectionFlags(cmd.Flags)
	principal := cmd.Flags.String("principal", "", "Principal id")
	resolved := cmd.Flags.Bool("resolved", false, "Also show the effective permission set")
	asJSON := cmd.Flags.Bool("json", false, "Print raw JSON")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *principal == "" {
			return fmt.Errorf("principal is required")
		}

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		perms, err := conn.client().GetPermissions(ctx, *principal, *resolved)
		if err != nil {
			return err
		}
		if *asJSON {
			return writeJSON(out, perms)
		}

		fmt.Fprintf(out, "Principal: %s\nRole:      %s\n", *principal, perms.Role)
		if *resolved {
			fmt.Fprintf(out, "Active:    %d\n", perms.ActiveCount)
		}
		fmt.Fprintln(out)
		return writeKeyTable(out, perms.Overrides, perms.Effective)
	}
	return cmd
}

func newSetCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "set",
		Description: "Grant, revoke or clear permission overrides",
		Flags:       flag.NewFlagSet("set", flag.ContinueOnError),
	}
	conn := addConnectionFlags(cmd.Flags)
	principal := cmd.Flags.String("principal", "", "Principal id")
	grant := cmd.Flags.String("grant", "", "Comma-separated keys to grant")
	revoke := cmd.Flags.String("revoke", "", "Comma-separated keys to revoke")
	clearKeys := cmd.Flags.String("clear", "", "Comma-separated keys to fall back to the role template")
	reason := cmd.Flags.String("reason", "", "Reason recorded in the audit log")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *principal == "" {
			return fmt.Errorf("principal is required")
		}

		grants, revokes, clears := splitKeys(*grant), splitKeys(*revoke), splitKeys(*clearKeys)
		if len(grants)+len(revokes)+len(clears) == 0 {
			return fmt.Errorf("at least one of -grant, -revoke or -clear is required")
		}

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		client := conn.client()
		current, err := client.GetPermissions(ctx, *principal, false)
		if err != nil {
			return err
		}

		next := ApplyEdits(current.Overrides, grants, revokes, clears)
		changed, err := client.UpdatePermissions(ctx, *principal, next, *reason)
		if err != nil {
			return err
		}

		if len(changed) == 0 {
			fmt.Fprintf(out, "No changes for %s\n", *principal)
			return nil
		}
		fmt.Fprintf(out, "Updated %s: %s\n", *principal, strings.Join(changed, ", "))
		return nil
	}
	return cmd
}

func newResetCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "reset",
		Description: "Reset a principal to its role template",
		Flags:       flag.NewFlagSet("reset", flag.ContinueOnError),
	}
	conn := addConnectionFlags(cmd.Flags)
	principal := cmd.Flags.String("principal", "", "Principal id")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *principal == "" {
			return fmt.Errorf("principal is required")
		}

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if _, err := conn.client().ResetPermissions(ctx, *principal); err != nil {
			return err
		}
		fmt.Fprintf(out, "Reset %s to its role template\n", *principal)
		return nil
	}
	return cmd
}

func newAuditCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "audit",
		Description: "Show a principal's permission change history",
		Flags:       flag.NewFlagSet("audit", flag.ContinueOnError),
	}
	conn := addConnectionFlags(cmd.Flags)
	principal := cmd.Flags.String("principal", "", "Principal id")
	limit := cmd.Flags.Int("limit", 20, "Maximum number of entries")
	asJSON := cmd.Flags.Bool("json", false, "Print raw JSON")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *principal == "" {
			return fmt.Errorf("principal is required")
		}

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		entries, err := conn.client().AuditLog(ctx, *principal, *limit)
		if err != nil {
			return err
		}
		if *asJSON {
			return writeJSON(out, entries)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "WHEN\tACTOR\tCHANGED\tREASON")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				e.CreatedAt.Format(time.RFC3339), e.Actor, strings.Join(e.ChangedKeys, ","), e.Reason)
		}
		return tw.Flush()
	}
	return cmd
}

func newKeysCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "keys",
		Description: "List the permission key registry",
		Flags:       flag.NewFlagSet("keys", flag.ContinueOnError),
	}
	conn := addConnectionFlags(cmd.Flags)

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		catalog, err := conn.client().Keys(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Registry version %d, %d keys\n", catalog.RegistryVersion, len(catalog.Keys))
		for _, k := range catalog.Keys {
			fmt.Fprintln(out, k)
		}
		return nil
	}
	return cmd
}

// ApplyEdits returns a copy of overrides with grants set true, revokes set false and
// clears removed. A key named in more than one list ends up with the last edit applied.
func ApplyEdits(overrides map[string]bool, grants, revokes, clears []string) map[string]bool {
	next := make(map[string]bool, len(overrides)+len(grants)+len(revokes))
	for k, v := range overrides {
		next[k] = v
	}
	for _, k := range grants {
		next[k] = true
	}
	for _, k := range revokes {
		next[k] = false
	}
	for _, k := range clears {
		delete(next, k)
	}
	return next
}

func splitKeys(s string) []string {
	var keys []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			keys = append(keys, part)
		}
	}
	return keys
}

func writeKeyTable(out io.Writer, overrides, effective map[string]bool) error {
	keys := make([]string, 0, len(overrides)+len(effective))
	seen := make(map[string]bool)
	for k := range overrides {
		keys = append(keys, k)
		seen[k] = true
	}
	for k := range effective {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if effective != nil {
		fmt.Fprintln(tw, "KEY\tOVERRIDE\tEFFECTIVE")
	} else {
		fmt.Fprintln(tw, "KEY\tOVERRIDE")
	}
	for _, k := range keys {
		override := "-"
		if v, ok := overrides[k]; ok {
			override = fmt.Sprint(v)
		}
		if effective != nil {
			fmt.Fprintf(tw, "%s\t%s\t%t\n", k, override, effective[k])
		} else {
			fmt.Fprintf(tw, "%s\t%s\n", k, override)
		}
	}
	return tw.Flush()
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
