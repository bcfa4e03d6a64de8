/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

// Package version exposes the application version string.
package version

// Version is the semantic version of the application. It is overridden at
// build time via -ldflags "-X scenevault/internal/version.Version=...".
var Version = "0.1.0-dev"

// String returns the version for display in logs and the CLI.
func String() string { return Version }
