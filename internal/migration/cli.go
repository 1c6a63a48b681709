package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"
)

// CLI renders migrator operations for the flowengine migrate subcommand.
type CLI struct {
	migrator Migrator
	out      io.Writer
	commands map[string]func(context.Context) error
}

// NewCLI creates a CLI writing to stdout.
func NewCLI(migrator Migrator) *CLI {
	c := &CLI{migrator: migrator, out: os.Stdout}
	c.commands = map[string]func(context.Context) error{
		"up":      c.up,
		"down":    c.down,
		"version": c.version,
		"status":  c.status,
		"info":    c.info,
	}
	return c
}

// SetOutput redirects CLI output.
func (c *CLI) SetOutput(w io.Writer) {
	c.out = w
}

// Commands returns the supported command names, sorted.
func (c *CLI) Commands() []string {
	names := make([]string, 0, len(c.commands))
	for name := range c.commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Run executes one of Commands.
func (c *CLI) Run(ctx context.Context, command string) error {
	fn, ok := c.commands[command]
	if !ok {
		return fmt.Errorf("unknown migrate command %q (want one of %v)", command, c.Commands())
	}
	return fn(ctx)
}

func (c *CLI) up(ctx context.Context) error {
	fmt.Fprintln(c.out, "Applying record store migrations...")
	if err := c.migrator.Up(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return c.summary(ctx, "Migrations complete")
}

func (c *CLI) down(ctx context.Context) error {
	fmt.Fprintln(c.out, "Rolling back one migration...")
	if err := c.migrator.Down(ctx); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return c.summary(ctx, "Rollback complete")
}

// summary prints "<prefix>: schema at version N (applied/total applied)".
func (c *CLI) summary(ctx context.Context, prefix string) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s: schema at version %d (%d/%d applied)\n",
		prefix, info.CurrentVersion, info.AppliedMigrations, info.TotalMigrations)
	return nil
}

func (c *CLI) version(ctx context.Context) error {
	v, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}
	switch {
	case v == 0:
		fmt.Fprintln(c.out, "Schema version: none")
	case dirty:
		fmt.Fprintf(c.out, "Schema version: %d (dirty)\n", v)
	default:
		fmt.Fprintf(c.out, "Schema version: %d\n", v)
	}
	return nil
}

func (c *CLI) status(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if len(statuses) == 0 {
		fmt.Fprintln(c.out, "No embedded migrations for this dialect.")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATE")
	for _, s := range statuses {
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, stateLabel(s))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "\nTotal: %d, Applied: %d, Pending: %d\n",
		info.TotalMigrations, info.AppliedMigrations, info.PendingMigrations)
	return nil
}

func stateLabel(s MigrationStatus) string {
	switch {
	case s.Dirty:
		return "Dirty"
	case s.Applied:
		return "Applied"
	default:
		return "Pending"
	}
}

func (c *CLI) info(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get info: %w", err)
	}
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "current version\t%d\n", info.CurrentVersion)
	fmt.Fprintf(w, "dirty\t%t\n", info.Dirty)
	fmt.Fprintf(w, "total\t%d\n", info.TotalMigrations)
	fmt.Fprintf(w, "applied\t%d\n", info.AppliedMigrations)
	fmt.Fprintf(w, "pending\t%d\n", info.PendingMigrations)
	return w.Flush()
}
