// Package catalog defines the controls the engine can recognise and how each
// one is acted on.
//
// A catalog is an ordered list of controls for one game mode ("module").
// Each control names a template image (<template_dir>/<name>.png), a match
// threshold, a priority (lower wins) and a kind:
//
//   - normal: tap, then wait a post-delay
//   - terminal: stop playing (pause or stop the session); checked first
//   - gate: only watched for a short validity window after its trigger
//   - gate_trigger: tap and arm the gate; the tick ends immediately
//   - timed: wait a drawn pre-wait before the tap
//   - sequenced: only tapped right after its prerequisite
//   - swipe: scroll upward from the control
//
// Sources:
//
//	cat, err := catalog.Builtin("yuhun", "./templates")      // embedded
//	cat, err := catalog.Load("mycatalog.yaml", "./templates") // YAML file
//	cat, err = catalog.LoadLegacy(cat, "button_config.json")  // old JSON format
//	cat, added, err := catalog.Discover(cat)                  // button*.png
//
// Catalogs are immutable once built and shared read-only between sessions.
package catalog
