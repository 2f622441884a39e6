// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// Command is a node in the command tree. Leaves have Run; groups have
// Subcommands.
type Command struct {
	// Name is the word typed to select the command ("tag", "rename").
	Name string

	// Aliases are alternative names ("ls" for "list").
	Aliases []string

	// Summary is the one-line description in the parent's listing.
	Summary string

	// Description is the longer text at the top of the command's own
	// help.
	Description string

	// Usage overrides the synthesized usage line.
	Usage string

	// Examples are printed at the end of the help.
	Examples []Example

	// Flags builds the command's flag set. It is called once per parse
	// and once per help rendering, so it must reset the variables it
	// binds. Nil means the command takes no flags.
	Flags func() *pflag.FlagSet

	// Subcommands are selected by the first positional argument.
	Subcommands []*Command

	// Run receives the positional arguments left after flag parsing.
	// On a group it runs when no subcommand is named.
	Run func(args []string) error

	// HelpOutput receives help text. Only consulted on the root;
	// defaults to os.Stderr.
	HelpOutput io.Writer

	parent *Command
}

// Example is one entry in a command's Examples section.
type Example struct {
	Description string
	Command     string
}

// errSubcommandRequired is returned when a group without Run is
// invoked without naming a subcommand.
var errSubcommandRequired = errors.New("subcommand required")

// Execute dispatches args through the tree and runs the selected
// command.
func (c *Command) Execute(args []string) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.PrintHelp(c.helpOutput())
		return nil
	}

	if len(c.Subcommands) > 0 && len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub := c.find(args[0])
		if sub == nil {
			return c.unknownCommand(args[0])
		}
		sub.parent = c
		return sub.Execute(args[1:])
	}

	if c.Run == nil {
		c.PrintHelp(c.helpOutput())
		if len(args) > 0 {
			return fmt.Errorf("%w (got flag %q)", errSubcommandRequired, args[0])
		}
		return errSubcommandRequired
	}

	positional, err := c.parseFlags(args)
	if err != nil {
		return err
	}
	return c.Run(positional)
}

// find returns the subcommand called name, by name or alias.
func (c *Command) find(name string) *Command {
	for _, sub := range c.Subcommands {
		if sub.Name == name {
			return sub
		}
		for _, alias := range sub.Aliases {
			if alias == name {
				return sub
			}
		}
	}
	return nil
}

func (c *Command) unknownCommand(name string) error {
	hint := fmt.Sprintf("Run '%s --help' for usage.", c.fullName())
	if suggestion := suggestCommand(name, c.Subcommands); suggestion != "" {
		return fmt.Errorf("unknown command %q (did you mean %q?)\n\n%s", name, suggestion, hint)
	}
	return fmt.Errorf("unknown command %q\n\n%s", name, hint)
}

// parseFlags parses args against the command's flags and returns the
// positional arguments. Flag errors name the closest known flag.
func (c *Command) parseFlags(args []string) ([]string, error) {
	if c.Flags == nil {
		return args, nil
	}
	flagSet := c.Flags()
	flagSet.SetOutput(io.Discard)
	err := flagSet.Parse(args)
	if err == nil {
		return flagSet.Args(), nil
	}

	hint := fmt.Sprintf("Run '%s --help' for usage.", c.fullName())
	message := err.Error()
	if strings.HasPrefix(message, "unknown flag") || strings.HasPrefix(message, "unknown shorthand flag") {
		if suggestion := suggestFlag(args, c.Flags()); suggestion != "" {
			return nil, fmt.Errorf("%s (did you mean %s?)\n\n%s", message, suggestion, hint)
		}
	}
	return nil, fmt.Errorf("%s\n\n%s", message, hint)
}

// PrintHelp writes the command's help text to w.
func (c *Command) PrintHelp(w io.Writer) {
	text := c.Description
	if text == "" {
		text = c.Summary
	}
	if text != "" {
		fmt.Fprintf(w, "%s\n\n", text)
	}

	fmt.Fprintf(w, "Usage:\n  %s\n", c.usage())
	if len(c.Aliases) > 0 {
		fmt.Fprintf(w, "\nAliases:\n  %s\n", strings.Join(c.Aliases, ", "))
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nCommands:\n")
		table := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			fmt.Fprintf(table, "  %s\t%s\n", sub.Name, sub.Summary)
		}
		table.Flush()
	}

	if c.Flags != nil {
		if usage := c.Flags().FlagUsages(); usage != "" {
			fmt.Fprintf(w, "\nFlags:\n%s", usage)
		}
	}

	if len(c.Examples) > 0 {
		fmt.Fprintf(w, "\nExamples:\n")
		for _, example := range c.Examples {
			if example.Description == "" {
				fmt.Fprintf(w, "  %s\n", example.Command)
				continue
			}
			fmt.Fprintf(w, "  # %s\n  %s\n\n", example.Description, example.Command)
		}
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nRun '%s <command> --help' for more information on a command.\n", c.fullName())
	}
}

func (c *Command) usage() string {
	switch {
	case c.Usage != "":
		return c.Usage
	case len(c.Subcommands) > 0:
		return c.fullName() + " <command> [flags]"
	default:
		return c.fullName() + " [flags]"
	}
}

// fullName is the command path from the root ("appdist tag rename").
func (c *Command) fullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.fullName() + " " + c.Name
}

func (c *Command) helpOutput() io.Writer {
	root := c
	for root.parent != nil {
		root = root.parent
	}
	if root.HelpOutput != nil {
		return root.HelpOutput
	}
	return os.Stderr
}

func isHelpFlag(arg string) bool {
	switch arg {
	case "-h", "--help", "help":
		return true
	}
	return false
}

// RequireArgs returns an error showing usage unless args has exactly
// count elements.
func RequireArgs(args []string, count int, usage string) error {
	if len(args) == count {
		return nil
	}
	return fmt.Errorf("expected %d argument(s), got %d\n\nUsage:\n  %s", count, len(args), usage)
}
