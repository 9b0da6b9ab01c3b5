// Package migrations embeds the database schema so the API can apply it at
// startup.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed *.sql
var files embed.FS

// Script is one schema file
type Script struct {
	Name string
	SQL  string
}

// Scripts returns every schema file in apply order. File names are
// zero-padded, so lexical order is apply order.
func Scripts() ([]Script, error) {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return nil, err
	}

	scripts := make([]Script, 0, len(names))
	for _, name := range names {
		data, err := files.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		scripts = append(scripts, Script{Name: name, SQL: string(data)})
	}

	return scripts, nil
}
