package registry

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wpsync/internal/config"
	"wpsync/internal/domain"
	"wpsync/internal/mapping"
)

func newLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestBuild_FallbackPaginatedWarns(t *testing.T) {
	var buf bytes.Buffer

	r, err := Build(&config.Config{}, newLogger(&buf))
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "using fallback")
	for _, name := range FallbackPaginated {
		ct, err := r.Get(name)
		require.NoError(t, err)
		assert.True(t, ct.Paginated, name)
	}

	category, err := r.Get("category")
	require.NoError(t, err)
	assert.False(t, category.Paginated)
}

func TestBuild_ConfiguredPaginated(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{
		Sync: config.SyncConfig{PaginatedTypes: []string{"category", "event"}},
		ContentTypes: []config.ContentTypeConfig{
			{Name: "event", Path: "events", Fields: []string{"title", "venue"}},
		},
	}

	r, err := Build(cfg, newLogger(&buf))
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	event, err := r.Get("event")
	require.NoError(t, err)
	assert.True(t, event.Paginated)
	assert.Equal(t, []string{"title", "venue"}, event.Fields.Names())

	post, err := r.Get("post")
	require.NoError(t, err)
	assert.False(t, post.Paginated)
}

func TestBuild_UnknownPaginatedType(t *testing.T) {
	cfg := &config.Config{Sync: config.SyncConfig{PaginatedTypes: []string{"nope"}}}

	_, err := Build(cfg, newLogger(&bytes.Buffer{}))
	assert.True(t, errors.Is(err, domain.ErrUnknownContentType))
}

func TestBuild_SingletonCannotPaginate(t *testing.T) {
	cfg := &config.Config{Sync: config.SyncConfig{PaginatedTypes: []string{domain.OptionsContentType}}}

	_, err := Build(cfg, newLogger(&bytes.Buffer{}))
	assert.ErrorContains(t, err, "singleton")
}

func TestBuild_DuplicateContentType(t *testing.T) {
	cfg := &config.Config{
		ContentTypes: []config.ContentTypeConfig{{Name: "post", Path: "posts", Fields: []string{"title"}}},
	}

	_, err := Build(cfg, newLogger(&bytes.Buffer{}))
	assert.ErrorContains(t, err, "already registered")
}

func TestBuild_BadFieldList(t *testing.T) {
	cfg := &config.Config{
		ContentTypes: []config.ContentTypeConfig{{Name: "event", Path: "events", Fields: []string{"a", "a"}}},
	}

	_, err := Build(cfg, newLogger(&bytes.Buffer{}))
	assert.ErrorContains(t, err, `content type "event"`)
}

func TestRegistry_CollectionsSkipSingletons(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(ContentType{Name: "b", Path: "b", Fields: mapping.Table{mapping.Title()}}))
	require.NoError(t, r.Register(ContentType{Name: "a", Path: "a", Fields: mapping.Table{mapping.Title()}}))
	require.NoError(t, r.Register(ContentType{Name: "opts", Path: "o", Singleton: true, Fields: mapping.Table{mapping.Copy("acf")}}))

	var names []string
	for _, ct := range r.Collections() {
		names = append(names, ct.Name)
	}
	assert.Equal(t, []string{"a", "b"}, names)
	assert.Len(t, r.All(), 3)
}

func TestRegistry_RegisterRequiresFields(t *testing.T) {
	r := New()
	assert.Error(t, r.Register(ContentType{Name: "x", Path: "x"}))
	assert.Error(t, r.Register(ContentType{Name: "", Path: "x", Fields: mapping.Table{mapping.Title()}}))
}
