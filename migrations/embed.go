// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package migrations embeds the SQL migrations for the central database.
package migrations

import "embed"

//go:embed *.sql
var EmbedMigrations embed.FS
