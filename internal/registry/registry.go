// Package registry holds the content types known to the synchronizer.
package registry

import (
	"fmt"
	"log/slog"
	"sort"

	"wpsync/internal/config"
	"wpsync/internal/domain"
	"wpsync/internal/mapping"
)

// FallbackPaginated is used when no paginated content types are configured.
var FallbackPaginated = []string{"post", "page", "media"}

// ContentType describes how one kind of upstream content is synchronized.
type ContentType struct {
	Name      string
	Path      string
	Paginated bool
	// Singleton types have no source ID and map onto one well-known record.
	Singleton bool
	Fields    mapping.Table
}

// Registry is an explicit, immutable-after-build set of content types.
type Registry struct {
	types map[string]*ContentType
}

func New() *Registry {
	return &Registry{types: make(map[string]*ContentType)}
}

// Register adds ct. Names must be unique.
func (r *Registry) Register(ct ContentType) error {
	if ct.Name == "" || ct.Path == "" {
		return fmt.Errorf("content type needs name and path")
	}
	if len(ct.Fields) == 0 {
		return fmt.Errorf("content type %q: no fields", ct.Name)
	}
	if _, exists := r.types[ct.Name]; exists {
		return fmt.Errorf("content type %q already registered", ct.Name)
	}
	r.types[ct.Name] = &ct
	return nil
}

func (r *Registry) Get(name string) (*ContentType, error) {
	ct, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownContentType, name)
	}
	return ct, nil
}

// All returns every registered type sorted by name.
func (r *Registry) All() []*ContentType {
	all := make([]*ContentType, 0, len(r.types))
	for _, ct := range r.types {
		all = append(all, ct)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Name < all[j].Name
	})
	return all
}

// Collections returns the registered non-singleton types sorted by name.
func (r *Registry) Collections() []*ContentType {
	var out []*ContentType
	for _, ct := range r.All() {
		if !ct.Singleton {
			out = append(out, ct)
		}
	}
	return out
}

// Builtin returns the content types every WordPress site exposes.
func Builtin() []ContentType {
	common := mapping.Table{
		mapping.Title(),
		mapping.Status(),
		mapping.Copy("slug"),
		mapping.Copy("link"),
		mapping.Copy("date_gmt"),
		mapping.Copy("modified_gmt"),
	}

	return []ContentType{
		{
			Name: "post",
			Path: "posts",
			Fields: append(append(mapping.Table{}, common...),
				mapping.Copy("content"),
				mapping.Copy("excerpt"),
				mapping.Copy("author"),
				mapping.Copy("categories"),
				mapping.Copy("tags"),
				mapping.Copy("featured_media"),
				mapping.Copy("acf"),
			),
		},
		{
			Name: "page",
			Path: "pages",
			Fields: append(append(mapping.Table{}, common...),
				mapping.Copy("content"),
				mapping.Copy("parent"),
				mapping.Copy("menu_order"),
				mapping.Copy("template"),
				mapping.Copy("acf"),
			),
		},
		{
			Name: "media",
			Path: "media",
			Fields: append(append(mapping.Table{}, common...),
				mapping.Copy("alt_text"),
				mapping.Copy("caption"),
				mapping.Copy("mime_type"),
				mapping.Copy("source_url"),
				mapping.Copy("media_details"),
			),
		},
		{
			Name: "category",
			Path: "categories",
			Fields: mapping.Table{
				mapping.Copy("name"),
				mapping.Copy("slug"),
				mapping.Copy("description"),
				mapping.Copy("parent"),
				mapping.Copy("count"),
			},
		},
		{
			Name: "tag",
			Path: "tags",
			Fields: mapping.Table{
				mapping.Copy("name"),
				mapping.Copy("slug"),
				mapping.Copy("description"),
				mapping.Copy("count"),
			},
		},
		{
			Name:      domain.OptionsContentType,
			Path:      "acf/v3/options/options",
			Singleton: true,
			Fields:    mapping.Table{mapping.Copy("acf")},
		},
	}
}

// Build assembles the registry from the built-in types and the configured
// ones, and marks the paginated types.
func Build(cfg *config.Config, logger *slog.Logger) (*Registry, error) {
	r := New()

	for _, ct := range Builtin() {
		if err := r.Register(ct); err != nil {
			return nil, err
		}
	}

	for _, c := range cfg.ContentTypes {
		table, err := mapping.FromNames(c.Fields)
		if err != nil {
			return nil, fmt.Errorf("content type %q: %w", c.Name, err)
		}
		if err := r.Register(ContentType{Name: c.Name, Path: c.Path, Fields: table}); err != nil {
			return nil, err
		}
	}

	paginated := cfg.Sync.PaginatedTypes
	if len(paginated) == 0 {
		logger.Warn("no paginated content types configured, using fallback",
			"fallback", FallbackPaginated,
		)
		paginated = FallbackPaginated
	}

	for _, name := range paginated {
		ct, err := r.Get(name)
		if err != nil {
			return nil, fmt.Errorf("paginated types: %w", err)
		}
		if ct.Singleton {
			return nil, fmt.Errorf("paginated types: %q is a singleton", name)
		}
		ct.Paginated = true
	}

	return r, nil
}
