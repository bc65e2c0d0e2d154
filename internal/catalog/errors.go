package catalog

import "errors"

// Domain errors for the catalog package.
//
//	if errors.Is(err, catalog.ErrUnknownModule) {
//	    // list catalog.Modules()
//	}
var (
	// ErrInvalidCatalog is returned when a catalog definition fails validation.
	ErrInvalidCatalog = errors.New("catalog: invalid")

	// ErrUnknownModule is returned when no builtin catalog has the requested name.
	ErrUnknownModule = errors.New("catalog: unknown module")

	// ErrControlNotFound is returned when a control name is not in the catalog.
	ErrControlNotFound = errors.New("catalog: control not found")

	// ErrNoTemplates is returned when none of the catalog's templates exist on disk.
	ErrNoTemplates = errors.New("catalog: no usable templates")
)
