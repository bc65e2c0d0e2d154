package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DiscoverPattern matches template files picked up by Discover.
const DiscoverPattern = "button*.png"

// Discover returns a catalog extended with every button*.png in the template
// directory that no control references yet. New controls are normal kind with
// default timing, appended in name order.
func Discover(c *Catalog) (*Catalog, []string, error) {
	matches, err := filepath.Glob(filepath.Join(c.templateDir, DiscoverPattern))
	if err != nil {
		return nil, nil, fmt.Errorf("scanning templates: %w", err)
	}
	sort.Strings(matches)

	known := make(map[string]bool, len(c.controls))
	for _, ctl := range c.controls {
		known[filepath.Base(ctl.Template)] = true
	}

	controls := c.Controls()
	var added []string
	for _, path := range matches {
		file := filepath.Base(path)
		name := strings.TrimSuffix(file, filepath.Ext(file))
		if known[file] {
			continue
		}
		if _, exists := c.index[name]; exists {
			continue
		}
		controls = append(controls, Control{
			Name:      name,
			Template:  file,
			Threshold: DefaultThreshold,
			Priority:  DefaultPriority,
			Kind:      KindNormal,
			Order:     len(controls),
			PostDelay: defaultPostDelay,
			Jitter:    defaultJitter,
		})
		added = append(added, name)
	}
	if len(added) == 0 {
		return c, nil, nil
	}

	out, err := newCatalog(c.module, c.templateDir, controls)
	if err != nil {
		return nil, nil, err
	}
	return out, added, nil
}

// Usable returns the controls whose template file exists, and the names of
// those that are missing.
func (c *Catalog) Usable() (usable, missing []string) {
	for _, ctl := range c.controls {
		if _, err := os.Stat(c.TemplatePath(ctl)); err != nil {
			missing = append(missing, ctl.Name)
			continue
		}
		usable = append(usable, ctl.Name)
	}
	return usable, missing
}

// ValidateTemplates fails with ErrNoTemplates when no matchable control has a
// template on disk.
func (c *Catalog) ValidateTemplates() error {
	usable, _ := c.Usable()
	for _, name := range usable {
		if ctl, _ := c.Lookup(name); ctl.Kind.Matchable() {
			return nil
		}
	}
	return fmt.Errorf("%w in %s", ErrNoTemplates, c.templateDir)
}
