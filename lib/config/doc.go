// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the appdist
// server and admin CLI.
//
// Configuration is loaded from a single file specified by either the
// APPDIST_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search. YAML is the primary format; files ending in .json or .jsonc
// are accepted with comments and trailing commas.
//
// Variable expansion is performed after loading on the store root,
// the public URL, the auth token, and the log file path: ${HOME},
// ${APPDIST_ROOT}, ${VAR}, and ${VAR:-default} patterns are expanded.
// This is how an auth token is kept out of the file itself.
//
// The production environment requires an auth token and a public URL.
//
// This package depends on no other appdist packages.
package config
