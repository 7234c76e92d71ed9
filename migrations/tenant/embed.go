// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package tenant embeds the SQL applied to every tenant database:
// goose migrations plus optional seed data.
package tenant

import (
	"embed"
	"io/fs"
)

//go:embed *.sql
var EmbedMigrations embed.FS

//go:embed seeds/*.sql
var seedFiles embed.FS

// EmbedSeeds exposes the seed files at the root of the filesystem.
var EmbedSeeds = mustSub(seedFiles, "seeds")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
