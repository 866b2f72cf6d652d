package spec

// A File is a single resolved .http file.
//
// It may be constructed with [ResolveFile] from a [syntax.File].
type File struct {
	// Name of the file
	Name string `json:"name,omitempty"`

	// The HTTP requests described in the file
	Requests []Request `json:"requests,omitempty"`
}
