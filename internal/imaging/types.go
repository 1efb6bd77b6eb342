package imaging

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Object is a code unit (method/function) tracked by the imaging service.
type Object struct {
	ID        string `json:"id,omitempty"`
	TypeID    string `json:"typeId"`
	Mangling  string `json:"mangling"`
	Language  Language
	External  Flag             `json:"external"`
	Locations []SourceLocation `json:"sourceLocations"`
}

// UnmarshalJSON keeps Object tolerant of the service's nested language shape
// without exposing it to callers.
func (o *Object) UnmarshalJSON(b []byte) error {
	type wire struct {
		TypeID              string           `json:"typeId"`
		Mangling            string           `json:"mangling"`
		ProgrammingLanguage Language         `json:"programmingLanguage"`
		External            Flag             `json:"external"`
		SourceLocations     []SourceLocation `json:"sourceLocations"`
	}
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	o.TypeID = w.TypeID
	o.Mangling = w.Mangling
	o.Language = w.ProgrammingLanguage
	o.External = w.External
	o.Locations = w.SourceLocations
	return nil
}

// HasSource reports whether the object carries at least one source location.
// External objects never do.
func (o *Object) HasSource() bool {
	return o != nil && !bool(o.External) && len(o.Locations) > 0
}

// Primary returns the object's first source location.
func (o *Object) Primary() SourceLocation {
	if o == nil || len(o.Locations) == 0 {
		return SourceLocation{}
	}
	return o.Locations[0]
}

type Language struct {
	Name string `json:"name"`
}

// SourceLocation pins an object (or a bookmark) to a file line range.
type SourceLocation struct {
	FilePath  string `json:"filePath,omitempty"`
	FileID    int    `json:"fileId"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
}

// CallLink is a directed call-graph edge. Callee edges carry the target name
// and link type; caller edges carry the caller id and optional call-site
// bookmarks.
type CallLink struct {
	ID        string           `json:"id,omitempty"`
	Name      string           `json:"name,omitempty"`
	LinkType  string           `json:"linkType,omitempty"`
	Bookmarks []SourceLocation `json:"bookmarks,omitempty"`
}

// IsExceptionEdge reports whether the edge is a raise/throw/catch link.
func (l CallLink) IsExceptionEdge() bool {
	switch strings.ToLower(strings.TrimSpace(l.LinkType)) {
	case "raise", "throw", "catch":
		return true
	}
	return false
}

// Flag is a boolean that the imaging service serializes either as a JSON bool
// or as the strings "true"/"false".
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch string(b) {
	case "true", `"true"`:
		*f = true
	case "null", "false", `"false"`, `""`:
		*f = false
	default:
		var v bool
		if err := json.Unmarshal(b, &v); err != nil {
			// Unknown spellings degrade to false rather than failing the
			// whole object fetch.
			*f = false
			return nil
		}
		*f = Flag(v)
	}
	return nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(f))
}
