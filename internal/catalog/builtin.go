package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Modules lists the builtin catalog names.
func Modules() []string {
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".yaml"); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Builtin returns the embedded catalog for a module, resolving templates
// against templateDir.
func Builtin(module, templateDir string) (*Catalog, error) {
	data, err := builtinFS.ReadFile(path.Join("builtin", module+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrUnknownModule, module, strings.Join(Modules(), ", "))
	}
	return Parse(data, templateDir)
}
