// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/significa/appdist/lib/cli"
	"github.com/significa/appdist/lib/manifest"
)

func (a *app) manifestCommand() *cli.Command {
	var (
		baseURL  string
		subtitle string
	)

	return &cli.Command{
		Name:    "manifest",
		Summary: "Render the iOS install descriptor of an upload",
		Description: `Print the app.plist an iOS device reads to install an upload, with
download links under --base-url (the server's public URL). Useful for
hosting a build from static storage.`,
		Usage: "appdist manifest <upload-id> --base-url URL [flags]",
		Examples: []cli.Example{
			{
				Command: "appdist manifest 3f2a... --base-url https://builds.example.com > app.plist",
			},
		},
		Flags: a.flags("manifest", func(flagSet *pflag.FlagSet) {
			baseURL, subtitle = "", ""
			flagSet.StringVar(&baseURL, "base-url", "", "public URL the upload is served under (required)")
			flagSet.StringVar(&subtitle, "subtitle", "", "optional subtitle shown in the install prompt")
		}),
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, 1, "appdist manifest <upload-id> --base-url URL"); err != nil {
				return err
			}
			if baseURL == "" {
				return fmt.Errorf("--base-url is required")
			}
			service, err := a.store.open()
			if err != nil {
				return err
			}
			uploadID := args[0]
			info, err := service.Get(uploadID)
			if err != nil {
				return err
			}

			base := strings.TrimRight(baseURL, "/") + "/get/" + uploadID
			options := manifest.Options{Subtitle: subtitle}
			if info.HasIcon {
				options.DisplayImageURL = base + "/icon.png"
				options.FullSizeImageURL = options.DisplayImageURL
			}
			document, err := service.RenderManifest(uploadID, base+"/app.ipa", options)
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(document)
			return err
		},
	}
}
