// Package models defines the client-side data model of the profile keeper:
// the editable profile schema (sections and fields), pinned-field
// normalization and the sync queue records.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/myid/internal/common"
)

// SchemaVersion is written into every schema produced by this package.
const SchemaVersion = 1

var (
	ErrSectionExists   = errors.New("section already exists")
	ErrSectionNotFound = errors.New("section not found")
	ErrFieldExists     = errors.New("field already exists")
	ErrFieldNotFound   = errors.New("field not found")
)

// Field is one named value slot. Key is the stable identifier; Label and
// Icon are presentation only.
type Field struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Icon     string `json:"icon,omitempty"`
	Required bool   `json:"required,omitempty"`
}

// Section is an ordered group of fields.
type Section struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Icon   string  `json:"icon,omitempty"`
	Color  string  `json:"color,omitempty"`
	Fields []Field `json:"fields"`
}

// Schema is the user-editable profile layout. Field keys are unique across
// the whole schema, section ids are unique among sections.
type Schema struct {
	Version  int       `json:"version"`
	Sections []Section `json:"sections"`
}

// ParseReport lists the entries ParseSchema dropped, one human-readable line
// per entry.
type ParseReport struct {
	Dropped []string
}

// ParseSchema converts untyped JSON into a strict Schema. It accepts either
// the object form {"version":1,"sections":[...]} or a bare array of sections
// (the legacy "categories" layout). Malformed sections and fields are dropped
// and listed in the report; only a document that is not JSON, or whose top
// level is neither form, is an error.
func ParseSchema(raw []byte) (Schema, ParseReport, error) {
	var report ParseReport

	var top any
	if err := json.Unmarshal(raw, &top); err != nil {
		return Schema{}, report, fmt.Errorf("%w: schema: %v", common.ErrorMalformedData, err)
	}

	var items []any
	switch v := top.(type) {
	case []any:
		items = v
	case map[string]any:
		sections, ok := v["sections"].([]any)
		if !ok {
			return Schema{}, report, fmt.Errorf("%w: schema: sections must be an array", common.ErrorMalformedData)
		}
		items = sections
	default:
		return Schema{}, report, fmt.Errorf("%w: schema: unexpected top-level value", common.ErrorMalformedData)
	}

	s := Schema{Version: SchemaVersion, Sections: make([]Section, 0, len(items))}
	sectionIDs := make(map[string]struct{})
	fieldKeys := make(map[string]struct{})

	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			report.Dropped = append(report.Dropped, fmt.Sprintf("sections[%d]: not an object", i))
			continue
		}
		id := stringValue(obj, "id")
		if id == "" {
			report.Dropped = append(report.Dropped, fmt.Sprintf("sections[%d]: missing id", i))
			continue
		}
		if _, dup := sectionIDs[id]; dup {
			report.Dropped = append(report.Dropped, fmt.Sprintf("sections[%d]: duplicate id %q", i, id))
			continue
		}
		sectionIDs[id] = struct{}{}

		sec := Section{
			ID:    id,
			Title: stringValue(obj, "title"),
			Icon:  stringValue(obj, "icon"),
			Color: stringValue(obj, "color"),
		}
		if sec.Title == "" {
			sec.Title = id
		}

		fields, _ := obj["fields"].([]any)
		sec.Fields = make([]Field, 0, len(fields))
		for j, f := range fields {
			fobj, ok := f.(map[string]any)
			if !ok {
				report.Dropped = append(report.Dropped, fmt.Sprintf("sections[%d].fields[%d]: not an object", i, j))
				continue
			}
			key := stringValue(fobj, "key")
			if key == "" {
				report.Dropped = append(report.Dropped, fmt.Sprintf("sections[%d].fields[%d]: missing key", i, j))
				continue
			}
			if _, dup := fieldKeys[key]; dup {
				report.Dropped = append(report.Dropped, fmt.Sprintf("sections[%d].fields[%d]: duplicate key %q", i, j, key))
				continue
			}
			fieldKeys[key] = struct{}{}

			field := Field{Key: key, Label: stringValue(fobj, "label"), Icon: stringValue(fobj, "icon")}
			if field.Label == "" {
				field.Label = key
			}
			field.Required, _ = fobj["required"].(bool)
			sec.Fields = append(sec.Fields, field)
		}

		s.Sections = append(s.Sections, sec)
	}

	return s, report, nil
}

func stringValue(obj map[string]any, key string) string {
	v, _ := obj[key].(string)
	return strings.TrimSpace(v)
}

// Clone returns a deep copy so edits never alias the receiver.
func (s Schema) Clone() Schema {
	out := Schema{Version: s.Version, Sections: make([]Section, len(s.Sections))}
	for i, sec := range s.Sections {
		sec.Fields = append([]Field(nil), sec.Fields...)
		out.Sections[i] = sec
	}
	return out
}

// SectionOf returns the id of the section owning key.
func (s Schema) SectionOf(key string) (string, bool) {
	for _, sec := range s.Sections {
		for _, f := range sec.Fields {
			if f.Key == key {
				return sec.ID, true
			}
		}
	}
	return "", false
}

// FieldsOf returns the keys of every field in section id, in order.
func (s Schema) FieldsOf(id string) []string {
	i := s.sectionIndex(id)
	if i < 0 {
		return nil
	}
	keys := make([]string, 0, len(s.Sections[i].Fields))
	for _, f := range s.Sections[i].Fields {
		keys = append(keys, f.Key)
	}
	return keys
}

// FieldKeys returns every field key in display order.
func (s Schema) FieldKeys() []string {
	var keys []string
	for _, sec := range s.Sections {
		for _, f := range sec.Fields {
			keys = append(keys, f.Key)
		}
	}
	return keys
}

// Field looks up a field definition by key.
func (s Schema) Field(key string) (Field, bool) {
	for _, sec := range s.Sections {
		for _, f := range sec.Fields {
			if f.Key == key {
				return f, true
			}
		}
	}
	return Field{}, false
}

// MissingRequired returns the required keys whose value in values is blank.
func (s Schema) MissingRequired(values map[string]string) []string {
	var missing []string
	for _, sec := range s.Sections {
		for _, f := range sec.Fields {
			if f.Required && strings.TrimSpace(values[f.Key]) == "" {
				missing = append(missing, f.Key)
			}
		}
	}
	return missing
}

func (s Schema) sectionIndex(id string) int {
	for i, sec := range s.Sections {
		if sec.ID == id {
			return i
		}
	}
	return -1
}

func (s Schema) fieldIndex(key string) (int, int) {
	for i, sec := range s.Sections {
		for j, f := range sec.Fields {
			if f.Key == key {
				return i, j
			}
		}
	}
	return -1, -1
}

// AddSection appends a new section. The section's fields must not collide
// with existing keys.
func (s *Schema) AddSection(sec Section) error {
	if strings.TrimSpace(sec.ID) == "" {
		return fmt.Errorf("%w: section id is empty", common.ErrorInvalidArgument)
	}
	if s.sectionIndex(sec.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrSectionExists, sec.ID)
	}
	for _, f := range sec.Fields {
		if i, _ := s.fieldIndex(f.Key); i >= 0 {
			return fmt.Errorf("%w: %s", ErrFieldExists, f.Key)
		}
	}
	if sec.Title == "" {
		sec.Title = sec.ID
	}
	sec.Fields = append([]Field(nil), sec.Fields...)
	s.Sections = append(s.Sections, sec)
	return nil
}

// RemoveSection deletes a section together with its field definitions.
// Stored values are left alone.
func (s *Schema) RemoveSection(id string) error {
	i := s.sectionIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrSectionNotFound, id)
	}
	s.Sections = append(s.Sections[:i], s.Sections[i+1:]...)
	return nil
}

// RenameSection changes a section title.
func (s *Schema) RenameSection(id, title string) error {
	i := s.sectionIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrSectionNotFound, id)
	}
	s.Sections[i].Title = title
	return nil
}

// MoveSection moves section id to position index, clamped to the valid range.
func (s *Schema) MoveSection(id string, index int) error {
	i := s.sectionIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrSectionNotFound, id)
	}
	sec := s.Sections[i]
	s.Sections = append(s.Sections[:i], s.Sections[i+1:]...)
	index = clamp(index, len(s.Sections))
	s.Sections = append(s.Sections[:index], append([]Section{sec}, s.Sections[index:]...)...)
	return nil
}

// AddField appends a field to section sectionID.
func (s *Schema) AddField(sectionID string, f Field) error {
	if strings.TrimSpace(f.Key) == "" {
		return fmt.Errorf("%w: field key is empty", common.ErrorInvalidArgument)
	}
	i := s.sectionIndex(sectionID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrSectionNotFound, sectionID)
	}
	if si, _ := s.fieldIndex(f.Key); si >= 0 {
		return fmt.Errorf("%w: %s", ErrFieldExists, f.Key)
	}
	if f.Label == "" {
		f.Label = f.Key
	}
	s.Sections[i].Fields = append(s.Sections[i].Fields, f)
	return nil
}

// RemoveField deletes the definition of key.
func (s *Schema) RemoveField(key string) error {
	i, j := s.fieldIndex(key)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrFieldNotFound, key)
	}
	fields := s.Sections[i].Fields
	s.Sections[i].Fields = append(fields[:j], fields[j+1:]...)
	return nil
}

// MoveField moves key into section sectionID at position index (clamped).
// Moving within the same section reorders it.
func (s *Schema) MoveField(key, sectionID string, index int) error {
	i, j := s.fieldIndex(key)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrFieldNotFound, key)
	}
	dst := s.sectionIndex(sectionID)
	if dst < 0 {
		return fmt.Errorf("%w: %s", ErrSectionNotFound, sectionID)
	}
	f := s.Sections[i].Fields[j]
	s.Sections[i].Fields = append(s.Sections[i].Fields[:j], s.Sections[i].Fields[j+1:]...)

	fields := s.Sections[dst].Fields
	index = clamp(index, len(fields))
	s.Sections[dst].Fields = append(fields[:index], append([]Field{f}, fields[index:]...)...)
	return nil
}

func clamp(index, n int) int {
	if index < 0 {
		return 0
	}
	if index > n {
		return n
	}
	return index
}
