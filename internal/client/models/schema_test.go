package models

import (
	"testing"

	"github.com/dmitrijs2005/myid/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchema_ObjectForm(t *testing.T) {
	raw := []byte(`{
		"version": 1,
		"sections": [
			{"id": "personal", "title": "Personal", "fields": [
				{"key": "firstName", "label": "First", "required": true},
				{"key": "lastName"}
			]},
			{"id": "social", "fields": [{"key": "instagram", "icon": "ig"}]}
		]
	}`)

	s, report, err := ParseSchema(raw)
	require.NoError(t, err)
	assert.Empty(t, report.Dropped)

	require.Len(t, s.Sections, 2)
	assert.Equal(t, SchemaVersion, s.Version)
	assert.Equal(t, "Personal", s.Sections[0].Title)
	assert.Equal(t, Field{Key: "firstName", Label: "First", Required: true}, s.Sections[0].Fields[0])
	assert.Equal(t, "lastName", s.Sections[0].Fields[1].Label, "label defaults to key")
	assert.Equal(t, "social", s.Sections[1].Title, "title defaults to id")
	assert.Equal(t, "ig", s.Sections[1].Fields[0].Icon)
}

func TestParseSchema_LegacyArrayForm(t *testing.T) {
	s, report, err := ParseSchema([]byte(`[{"id":"c1","fields":[{"key":"email"}]}]`))
	require.NoError(t, err)
	assert.Empty(t, report.Dropped)
	assert.Equal(t, []string{"email"}, s.FieldKeys())
}

func TestParseSchema_DropsMalformedEntries(t *testing.T) {
	raw := []byte(`[
		"not an object",
		{"title": "no id"},
		{"id": "a", "fields": [{"key": "email"}, {"label": "no key"}, 42, {"key": "email"}]},
		{"id": "a", "fields": []},
		{"id": "b", "fields": [{"key": "  "}]}
	]`)

	s, report, err := ParseSchema(raw)
	require.NoError(t, err)

	require.Len(t, s.Sections, 2)
	assert.Equal(t, []string{"email"}, s.FieldsOf("a"))
	assert.Empty(t, s.FieldsOf("b"))
	assert.Len(t, report.Dropped, 7)
}

func TestParseSchema_Errors(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":        `{oops`,
		"scalar":          `"schema"`,
		"sections object": `{"sections": {}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := ParseSchema([]byte(raw))
			require.ErrorIs(t, err, common.ErrorMalformedData)
		})
	}
}

func TestSchema_Lookups(t *testing.T) {
	s := DefaultSchema()

	sec, ok := s.SectionOf(KeyEmail)
	require.True(t, ok)
	assert.Equal(t, "contact", sec)

	_, ok = s.SectionOf("nope")
	assert.False(t, ok)

	f, ok := s.Field(KeyPANCardNumber)
	require.True(t, ok)
	assert.Equal(t, "PAN Card", f.Label)

	assert.Nil(t, s.FieldsOf("nope"))
	assert.Equal(t, []string{KeyFirstName}, s.MissingRequired(map[string]string{KeyFirstName: "  "}))
	assert.Empty(t, s.MissingRequired(map[string]string{KeyFirstName: "Ada"}))
}

func TestSchema_Editing(t *testing.T) {
	s := DefaultSchema()

	require.NoError(t, s.AddSection(Section{ID: "work", Fields: []Field{{Key: "employer"}}}))
	require.ErrorIs(t, s.AddSection(Section{ID: "work"}), ErrSectionExists)
	require.ErrorIs(t, s.AddSection(Section{ID: "x", Fields: []Field{{Key: KeyEmail}}}), ErrFieldExists)
	require.ErrorIs(t, s.AddSection(Section{}), common.ErrorInvalidArgument)

	require.NoError(t, s.AddField("work", Field{Key: "title"}))
	require.ErrorIs(t, s.AddField("work", Field{Key: "title"}), ErrFieldExists)
	require.ErrorIs(t, s.AddField("missing", Field{Key: "z"}), ErrSectionNotFound)
	require.ErrorIs(t, s.AddField("work", Field{}), common.ErrorInvalidArgument)
	assert.Equal(t, []string{"employer", "title"}, s.FieldsOf("work"))

	require.NoError(t, s.MoveField("title", "work", 0))
	assert.Equal(t, []string{"title", "employer"}, s.FieldsOf("work"))

	require.NoError(t, s.MoveField(KeyEmail, "work", 99))
	assert.Equal(t, []string{"title", "employer", KeyEmail}, s.FieldsOf("work"))
	assert.NotContains(t, s.FieldsOf("contact"), KeyEmail)
	require.ErrorIs(t, s.MoveField("nope", "work", 0), ErrFieldNotFound)
	require.ErrorIs(t, s.MoveField("title", "nope", 0), ErrSectionNotFound)

	require.NoError(t, s.RemoveField("employer"))
	require.ErrorIs(t, s.RemoveField("employer"), ErrFieldNotFound)

	require.NoError(t, s.MoveSection("work", -5))
	assert.Equal(t, "work", s.Sections[0].ID)

	require.NoError(t, s.RenameSection("work", "Job"))
	assert.Equal(t, "Job", s.Sections[0].Title)
	require.ErrorIs(t, s.RenameSection("nope", "x"), ErrSectionNotFound)

	require.NoError(t, s.RemoveSection("work"))
	require.ErrorIs(t, s.RemoveSection("work"), ErrSectionNotFound)
	require.ErrorIs(t, s.MoveSection("work", 0), ErrSectionNotFound)
}

func TestSchema_CloneDoesNotAlias(t *testing.T) {
	s := DefaultSchema()
	c := s.Clone()

	require.NoError(t, c.AddField("personal", Field{Key: "nickname"}))
	c.Sections[0].Title = "changed"

	assert.NotContains(t, s.FieldsOf("personal"), "nickname")
	assert.Equal(t, "Personal", s.Sections[0].Title)
}

func TestDefaultSchema_UniqueKeys(t *testing.T) {
	seen := map[string]bool{}
	for _, k := range DefaultSchema().FieldKeys() {
		assert.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
	}
	assert.Len(t, seen, 19)
	assert.Equal(t, "unknownKey", Label("unknownKey"))
}
