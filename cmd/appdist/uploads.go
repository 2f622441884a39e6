// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/significa/appdist/lib/buildinfo"
	"github.com/significa/appdist/lib/cli"
	"github.com/significa/appdist/lib/codec"
	"github.com/significa/appdist/lib/distribution"
)

// --- ingest ---

func (a *app) ingestCommand() *cli.Command {
	var tags []string

	return &cli.Command{
		Name:    "ingest",
		Summary: "Store a build artifact",
		Description: `Read an .ipa or .apk, extract its identity, and store it. Every tag
must already exist (see "appdist tag create"). Ingesting bytes that are
already stored prints the existing record, with any --tag attached.`,
		Usage: "appdist ingest <file> [--tag TAG]... [flags]",
		Examples: []cli.Example{
			{
				Description: "Store a release build tagged for QA",
				Command:     "appdist ingest build/Example.ipa --tag qa",
			},
		},
		Flags: a.flags("ingest", func(flagSet *pflag.FlagSet) {
			tags = nil
			flagSet.StringArrayVarP(&tags, "tag", "t", nil, "tag to attach (repeatable)")
		}),
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, 1, "appdist ingest <file> [--tag TAG]..."); err != nil {
				return err
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			service, err := a.store.open()
			if err != nil {
				return err
			}
			info, err := service.Ingest(raw, args[0], tags)
			if err != nil {
				return err
			}
			return a.printBuild(info)
		},
	}
}

// --- show ---

func (a *app) showCommand() *cli.Command {
	var raw bool

	return &cli.Command{
		Name:    "show",
		Summary: "Show one upload",
		Description: `Print the stored record of an upload. --raw prints the record in CBOR
diagnostic notation, as it is encoded on disk.`,
		Usage: "appdist show <upload-id> [--raw] [flags]",
		Flags: a.flags("show", func(flagSet *pflag.FlagSet) {
			raw = false
			flagSet.BoolVar(&raw, "raw", false, "print the CBOR encoding in diagnostic notation")
		}),
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, 1, "appdist show <upload-id>"); err != nil {
				return err
			}
			service, err := a.store.open()
			if err != nil {
				return err
			}
			info, err := service.Get(args[0])
			if err != nil {
				return err
			}
			if raw {
				encoded, err := codec.Marshal(info)
				if err != nil {
					return err
				}
				diagnostic, err := codec.Diagnose(encoded)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, diagnostic)
				return nil
			}
			return a.printBuild(info)
		},
	}
}

// --- latest ---

func (a *app) latestCommand() *cli.Command {
	return &cli.Command{
		Name:    "latest",
		Summary: "Show the latest upload of a bundle",
		Description: `Print the most recently ingested upload of a bundle id (iOS) or
package name (Android). If that upload was deleted the bundle has no
latest upload.`,
		Usage: "appdist latest <bundle-id> [flags]",
		Flags: a.flags("latest", nil),
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, 1, "appdist latest <bundle-id>"); err != nil {
				return err
			}
			service, err := a.store.open()
			if err != nil {
				return err
			}
			info, err := service.GetLatest(args[0])
			if err != nil {
				return err
			}
			return a.printBuild(info)
		},
	}
}

// --- list ---

func (a *app) listCommand() *cli.Command {
	var (
		platform string
		tags     []string
	)

	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Summary: "List uploads",
		Description: `List uploads newest first. --platform and --tag narrow the result; an
upload must carry every --tag given.`,
		Usage: "appdist list [--platform ios|android] [--tag TAG]... [flags]",
		Flags: a.flags("list", func(flagSet *pflag.FlagSet) {
			platform, tags = "", nil
			flagSet.StringVarP(&platform, "platform", "p", "", "only ios or android uploads")
			flagSet.StringArrayVarP(&tags, "tag", "t", nil, "only uploads carrying this tag (repeatable)")
		}),
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, 0, "appdist list [flags]"); err != nil {
				return err
			}
			filter := distribution.Filter{Tags: tags}
			if platform != "" {
				parsed, err := buildinfo.ParsePlatform(platform)
				if err != nil {
					return err
				}
				filter.Platform = parsed
			}

			service, err := a.store.open()
			if err != nil {
				return err
			}
			entries, err := service.List(filter)
			if err != nil {
				return err
			}

			output := a.output()
			if done, err := output.Emit(entries); done {
				return err
			}
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				info := entry.BuildInfo
				rows = append(rows, []string{
					entry.UploadID[:12],
					string(info.Platform),
					info.BundleID,
					info.BundleVersion,
					info.CreatedAt.Format(time.DateTime),
					strings.Join(entry.Tags, ","),
				})
			}
			return output.Table([]string{"UPLOAD", "PLATFORM", "BUNDLE", "VERSION", "CREATED", "TAGS"}, rows)
		},
	}
}

// --- delete ---

func (a *app) deleteCommand() *cli.Command {
	return &cli.Command{
		Name:    "delete",
		Aliases: []string{"rm"},
		Summary: "Delete an upload",
		Usage:   "appdist delete <upload-id> [flags]",
		Flags:   a.flags("delete", nil),
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, 1, "appdist delete <upload-id>"); err != nil {
				return err
			}
			service, err := a.store.open()
			if err != nil {
				return err
			}
			if err := service.Delete(args[0]); err != nil {
				return err
			}
			output := a.output()
			if done, err := output.Emit(map[string]string{"deleted": args[0]}); done {
				return err
			}
			output.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}

// printBuild writes one record as JSON or as aligned key/value lines.
func (a *app) printBuild(info buildinfo.BuildInfo) error {
	output := a.output()
	if done, err := output.Emit(info); done {
		return err
	}
	buildNumber := info.BuildNumber
	if buildNumber == "" {
		buildNumber = "-"
	}
	rows := [][]string{
		{"upload_id", info.UploadID},
		{"platform", string(info.Platform)},
		{"bundle_id", info.BundleID},
		{"version", info.BundleVersion},
		{"build_number", buildNumber},
		{"app_name", info.Title()},
		{"file", info.FileName + " (" + strconv.FormatInt(info.FileSize, 10) + " bytes)"},
		{"icon", strconv.FormatBool(info.HasIcon)},
		{"created_at", info.CreatedAt.Format(time.RFC3339)},
		{"tags", strings.Join(info.Tags, ", ")},
	}
	return output.Table([]string{"FIELD", "VALUE"}, rows)
}
