// Command oru is a thin cobra wrapper around the library facade in the
// root oru package. It exists to demonstrate that the core is usable
// standalone; it is deliberately not a full command surface.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/tchayen/oru"
	"github.com/tchayen/oru/internal/oruconfig"
	"github.com/tchayen/oru/internal/oruslog"
	"gopkg.in/yaml.v3"
)

var (
	configPath string
	verbose    bool
	logYAML    bool
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "oru",
	Short: "Local-first task manager with a content-addressed oplog",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to oru.toml (defaults to none)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "log at debug level instead of info")

	logCmd.Flags().BoolVar(&logYAML, "yaml", false, "dump the raw oplog entries as YAML instead of a one-line-per-entry summary")
	rootCmd.AddCommand(addCmd, listCmd, showCmd, doneCmd, contextCmd, logCmd)
}

func slogLevel() slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func openStore(ctx context.Context) (*oru.Store, error) {
	cfg, err := oruconfig.Load(configPath)
	if err != nil {
		return nil, err
	}
	level := slogLevel()
	return oru.Open(ctx, cfg.DBPath, oru.Options{Logger: oruslog.New(os.Stderr, level)})
}

var addCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Create a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		t, err := store.Add(ctx, oru.AddInput{Title: args[0]})
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s\n", t.ID, t.Title)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		tasks, err := store.List(ctx, oru.Filters{})
		if err != nil {
			return err
		}
		for _, t := range tasks {
			fmt.Printf("%s  [%s/%s]  %s\n", t.ID, t.Status, t.Priority, t.Title)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a single task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		t, err := store.Get(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s\nstatus: %s\npriority: %s\nowner: %s\ndue: %s\n",
			t.ID, t.Title, t.Status, t.Priority, t.Owner, t.DueAt)
		return nil
	},
}

var doneCmd = &cobra.Command{
	Use:   "done [id]",
	Short: "Mark a task as done",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		done := oru.StatusDone
		t, err := store.Update(ctx, args[0], oru.UpdatePartial{Status: &done})
		if err != nil {
			return err
		}
		fmt.Printf("%s  done\n", t.ID)
		return nil
	},
}

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Show overdue, due-soon, blocked, and actionable tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		c, err := store.GetContext(ctx, oru.ContextOptions{})
		if err != nil {
			return err
		}
		printSection := func(label string, tasks []oru.Task) {
			if len(tasks) == 0 {
				return
			}
			fmt.Printf("%s (%d):\n", label, len(tasks))
			for _, t := range tasks {
				fmt.Printf("  %s  %s\n", t.ID, t.Title)
			}
		}
		printSection("overdue", c.Sections.Overdue)
		printSection("due soon", c.Sections.DueSoon)
		printSection("in progress", c.Sections.InProgress)
		printSection("blocked", c.Sections.Blocked)
		printSection("actionable", c.Sections.Actionable)
		return nil
	},
}

var logCmd = &cobra.Command{
	Use:   "log [id]",
	Short: "Show a task's oplog history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.Log(ctx, args[0])
		if err != nil {
			return err
		}

		if logYAML {
			out, err := yaml.Marshal(entries)
			if err != nil {
				return fmt.Errorf("oru: marshal log as yaml: %w", err)
			}
			fmt.Print(string(out))
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%s  %-8s %s  %s=%s\n", e.Timestamp, e.OpType, e.DeviceID, e.Field, e.Value)
		}
		return nil
	},
}
