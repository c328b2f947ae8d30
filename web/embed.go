// Package web embeds the browser shell served and cached by "meditate serve".
package web

import (
	"embed"
	"io/fs"
)

//go:embed static
var static embed.FS

// FS returns the shell rooted at its top directory, so "index.html" is at
// the root.
func FS() fs.FS {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		// The embed pattern guarantees the directory exists.
		panic(err)
	}
	return sub
}
