// Package db embeds the SQL migrations of the master database and of every
// store database.
package db

import (
	"embed"
	"io/fs"
)

//go:embed master/*.sql tenant/*.sql
var migrations embed.FS

// Master returns the migrations of the master database.
func Master() fs.FS {
	return sub("master")
}

// Tenant returns the migrations applied to each store database.
func Tenant() fs.FS {
	return sub("tenant")
}

func sub(dir string) fs.FS {
	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		panic(err)
	}
	return fsys
}
