package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wpsync/internal/domain"
)

func TestTable_Apply(t *testing.T) {
	table := Table{Title(), Status(), Copy("slug"), Copy("acf")}

	src := map[string]any{
		"id":     "12",
		"title":  map[string]any{"rendered": "Hello"},
		"status": "publish",
		"slug":   "hello",
		"acf":    map[string]any{"hero": "img.jpg"},
		"extra":  "ignored",
	}

	rec := &domain.Record{}
	table.Apply(rec, src)

	assert.Equal(t, "Hello", rec.Title)
	assert.Equal(t, "publish", rec.Status)
	assert.Equal(t, "hello", rec.Fields["slug"])
	assert.Equal(t, map[string]any{"hero": "img.jpg"}, rec.Fields["acf"])
	assert.NotContains(t, rec.Fields, "extra")
}

func TestTable_Apply_MissingKeysClearFields(t *testing.T) {
	table := Table{Title(), Status(), Copy("slug")}

	rec := &domain.Record{
		Title:  "old",
		Status: "publish",
		Fields: map[string]any{"slug": "old-slug"},
	}
	table.Apply(rec, map[string]any{})

	assert.Equal(t, "", rec.Title)
	assert.Equal(t, "", rec.Status)
	require.Contains(t, rec.Fields, "slug")
	assert.Nil(t, rec.Fields["slug"])
}

func TestTable_Apply_Idempotent(t *testing.T) {
	table := Table{Title(), Copy("content")}
	src := map[string]any{"title": "Plain", "content": map[string]any{"rendered": "<p>x</p>"}}

	first := &domain.Record{}
	table.Apply(first, src)
	second := &domain.Record{Title: first.Title, Fields: map[string]any{"content": first.Fields["content"]}}
	table.Apply(second, src)

	assert.Equal(t, first.Title, second.Title)
	assert.Equal(t, first.Fields, second.Fields)
}

func TestFromNames(t *testing.T) {
	table, err := FromNames([]string{"title", "status", "acf"})
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "status", "acf"}, table.Names())

	rec := &domain.Record{}
	table.Apply(rec, map[string]any{"title": "T", "status": "draft", "acf": 1})
	assert.Equal(t, "T", rec.Title)
	assert.Equal(t, "draft", rec.Status)
	assert.Equal(t, 1, rec.Fields["acf"])
}

func TestFromNames_Invalid(t *testing.T) {
	_, err := FromNames(nil)
	assert.Error(t, err)

	_, err = FromNames([]string{"slug", ""})
	assert.Error(t, err)

	_, err = FromNames([]string{"slug", "slug"})
	assert.ErrorContains(t, err, "duplicate")
}
