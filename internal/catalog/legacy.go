package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"time"
)

// Legacy button types.
const (
	legacyTypeNormal  = "normal"
	legacyTypeSpecial = "special"
)

// LegacyButton is one entry of a button_config.json file.
type LegacyButton struct {
	Threshold *float64 `json:"threshold,omitempty"`
	Type      string   `json:"type,omitempty"`
	ClickMin  *int     `json:"click_min,omitempty"`
	ClickMax  *int     `json:"click_max,omitempty"`
	DelayMin  *float64 `json:"delay_min,omitempty"`
	DelayMax  *float64 `json:"delay_max,omitempty"`
}

// ReadLegacy decodes a button_config.json file.
func ReadLegacy(path string) (map[string]LegacyButton, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading legacy button config: %w", err)
	}
	var buttons map[string]LegacyButton
	if err := json.Unmarshal(data, &buttons); err != nil {
		return nil, fmt.Errorf("%w: legacy button config: %w", ErrInvalidCatalog, err)
	}
	return buttons, nil
}

// LoadLegacy merges a button_config.json file over base.
//
// Buttons already in base keep their kind and priority; their threshold,
// jitter and post-delay are replaced by whatever the legacy entry sets.
// Unknown buttons are appended as normal controls in name order.
func LoadLegacy(base *Catalog, path string) (*Catalog, error) {
	buttons, err := ReadLegacy(path)
	if err != nil {
		return nil, err
	}
	return MergeLegacy(base, buttons)
}

// MergeLegacy is LoadLegacy for already decoded buttons.
func MergeLegacy(base *Catalog, buttons map[string]LegacyButton) (*Catalog, error) {
	controls := base.Controls()

	names := make([]string, 0, len(buttons))
	for name := range buttons {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		b := buttons[name]
		if b.Type != "" && b.Type != legacyTypeNormal && b.Type != legacyTypeSpecial {
			return nil, fmt.Errorf("%w: button %q has unknown type %q", ErrInvalidCatalog, name, b.Type)
		}

		i, ok := base.index[name]
		if !ok {
			controls = append(controls, Control{
				Name:      name,
				Template:  name + ".png",
				Threshold: DefaultThreshold,
				Priority:  DefaultPriority,
				Kind:      KindNormal,
				Order:     len(controls),
				PostDelay: defaultPostDelay,
				Jitter:    defaultJitter,
			})
			i = len(controls) - 1
		}
		b.apply(&controls[i])
	}

	return newCatalog(base.module, base.templateDir, controls)
}

func (b LegacyButton) apply(ctl *Control) {
	if b.Type == legacyTypeSpecial {
		ctl.Moving = true
		ctl.Threshold = DefaultMovingThreshold
	}
	if b.Threshold != nil {
		ctl.Threshold = *b.Threshold
	}
	if b.ClickMin != nil {
		ctl.Jitter.Min = *b.ClickMin
	}
	if b.ClickMax != nil {
		ctl.Jitter.Max = *b.ClickMax
	}
	if b.DelayMin != nil {
		ctl.PostDelay.Min = seconds(*b.DelayMin)
	}
	if b.DelayMax != nil {
		ctl.PostDelay.Max = seconds(*b.DelayMax)
	}
}

// ToLegacy exports the catalog in button_config.json form.
func (c *Catalog) ToLegacy() map[string]LegacyButton {
	out := make(map[string]LegacyButton, len(c.controls))
	for _, ctl := range c.controls {
		threshold := ctl.Threshold
		clickMin, clickMax := ctl.Jitter.Min, ctl.Jitter.Max
		delayMin, delayMax := ctl.PostDelay.Min.Seconds(), ctl.PostDelay.Max.Seconds()
		typ := legacyTypeNormal
		if ctl.Moving {
			typ = legacyTypeSpecial
		}
		out[ctl.Name] = LegacyButton{
			Threshold: &threshold,
			Type:      typ,
			ClickMin:  &clickMin,
			ClickMax:  &clickMax,
			DelayMin:  &delayMin,
			DelayMax:  &delayMax,
		}
	}
	return out
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
