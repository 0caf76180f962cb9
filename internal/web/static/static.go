package static

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed css/*
var staticFS embed.FS

// Handler serves the embedded stylesheets. Mount it with the /static prefix
// stripped.
func Handler() http.Handler {
	fsys, err := fs.Sub(staticFS, ".")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(fsys))
}
