// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"strings"

	"github.com/significa/appdist/lib/cli"
)

func (a *app) tagCommand() *cli.Command {
	return &cli.Command{
		Name:    "tag",
		Summary: "Manage tags",
		Description: `Tags are labels attached to uploads. A tag must be created before any
upload can carry it. Renaming a tag rewrites every upload that carries
it as one change.`,
		Subcommands: []*cli.Command{
			a.tagCreateCommand(),
			a.tagListCommand(),
			a.tagRenameCommand(),
			a.tagAttachCommand(),
			a.tagExistsCommand(),
		},
	}
}

func (a *app) tagCreateCommand() *cli.Command {
	return &cli.Command{
		Name:    "create",
		Summary: "Create a tag",
		Usage:   "appdist tag create <name> [flags]",
		Flags:   a.flags("create", nil),
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, 1, "appdist tag create <name>"); err != nil {
				return err
			}
			service, err := a.store.open()
			if err != nil {
				return err
			}
			name := strings.TrimSpace(args[0])
			if err := service.CreateTag(name); err != nil {
				return err
			}
			output := a.output()
			if done, err := output.Emit(map[string]string{"tag": name}); done {
				return err
			}
			output.Printf("created tag %s\n", name)
			return nil
		},
	}
}

func (a *app) tagListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Summary: "List all tags",
		Usage:   "appdist tag list [flags]",
		Flags:   a.flags("list", nil),
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, 0, "appdist tag list"); err != nil {
				return err
			}
			service, err := a.store.open()
			if err != nil {
				return err
			}
			tags, err := service.ListTags()
			if err != nil {
				return err
			}
			output := a.output()
			if done, err := output.Emit(tags); done {
				return err
			}
			for _, tag := range tags {
				output.Printf("%s\n", tag)
			}
			return nil
		},
	}
}

func (a *app) tagRenameCommand() *cli.Command {
	return &cli.Command{
		Name:    "rename",
		Summary: "Rename a tag everywhere",
		Usage:   "appdist tag rename <old> <new> [flags]",
		Flags:   a.flags("rename", nil),
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, 2, "appdist tag rename <old> <new>"); err != nil {
				return err
			}
			service, err := a.store.open()
			if err != nil {
				return err
			}
			oldName, newName := strings.TrimSpace(args[0]), strings.TrimSpace(args[1])
			if err := service.RenameTag(oldName, newName); err != nil {
				return err
			}
			output := a.output()
			if done, err := output.Emit(map[string]string{"old_tag": oldName, "new_tag": newName}); done {
				return err
			}
			output.Printf("renamed tag %s to %s\n", oldName, newName)
			return nil
		},
	}
}

func (a *app) tagAttachCommand() *cli.Command {
	return &cli.Command{
		Name:    "attach",
		Summary: "Attach existing tags to an upload",
		Usage:   "appdist tag attach <upload-id> <tag>... [flags]",
		Flags:   a.flags("attach", nil),
		Run: func(args []string) error {
			if len(args) < 2 {
				return cli.RequireArgs(args, 2, "appdist tag attach <upload-id> <tag>...")
			}
			service, err := a.store.open()
			if err != nil {
				return err
			}
			tags, err := service.AttachTags(args[0], args[1:])
			if err != nil {
				return err
			}
			output := a.output()
			if done, err := output.Emit(map[string]any{"upload_id": args[0], "tags": tags}); done {
				return err
			}
			output.Printf("%s: %s\n", args[0], strings.Join(tags, ", "))
			return nil
		},
	}
}

// tagExistsCommand answers through the exit status so scripts can use
// it in conditionals.
func (a *app) tagExistsCommand() *cli.Command {
	return &cli.Command{
		Name:    "exists",
		Summary: "Exit 0 if a tag exists, 1 otherwise",
		Usage:   "appdist tag exists <name> [flags]",
		Flags:   a.flags("exists", nil),
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, 1, "appdist tag exists <name>"); err != nil {
				return err
			}
			service, err := a.store.open()
			if err != nil {
				return err
			}
			exists, err := service.TagExists(args[0])
			if err != nil {
				return err
			}
			if !exists {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}
