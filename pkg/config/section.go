package config

// Section is one named block of the user config file.
type Section interface {
	// ID is the key the section is stored under.
	ID() string
	Title() string
	Description() string

	// Data returns the section as plain JSON-compatible values.
	Data() map[string]any

	// SetData applies values read from the store. Unknown keys are ignored.
	SetData(data map[string]any) error
	Validate() error

	// Reset restores defaults.
	Reset()
}
