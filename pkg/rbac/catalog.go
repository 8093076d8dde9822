package rbac

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Category groups permission items for admin screens
type Category struct {
	ID    string         `json:"id" yaml:"id"`
	Label string         `json:"label" yaml:"label"`
	Items []CategoryItem `json:"items" yaml:"items"`
}

// CategoryItem is one toggle on the admin permission editor
type CategoryItem struct {
	Key         string      `json:"key" yaml:"key"`
	Label       string      `json:"label" yaml:"label"`
	Description string      `json:"description,omitempty" yaml:"description"`
	Children    []ChildItem `json:"children,omitempty" yaml:"children"`
}

// ChildItem is a navigation sub-item tied to a sidebar entry
type ChildItem struct {
	Key       string `json:"key" yaml:"key"`
	Label     string `json:"label" yaml:"label"`
	SidebarID string `json:"sidebar_id" yaml:"sidebar_id"`
}

type routeEntry struct {
	prefix string
	key    Key
}

// Catalog maps UI affordances onto permission keys.
// It is static and owned by the UI layer; lookups never fail, they report absence.
type Catalog struct {
	categories []Category
	children   map[Key][]Key
	sidebar    map[string]Key
	routes     map[string]Key
	byLength   []routeEntry
}

//go:embed catalog.yaml
var defaultCatalogYAML []byte

var (
	defaultCatalogOnce sync.Once
	defaultCatalog     *Catalog
)

// DefaultCatalog returns the catalog compiled into the binary
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		c, err := LoadCatalog(defaultCatalogYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

type catalogFile struct {
	Categories []Category        `yaml:"categories"`
	Sidebar    map[string]string `yaml:"sidebar"`
	Routes     map[string]string `yaml:"routes"`
}

// LoadCatalog parses a YAML catalog, rejecting references to unknown keys
func LoadCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	c := &Catalog{
		categories: file.Categories,
		children:   make(map[Key][]Key),
		sidebar:    make(map[string]Key),
		routes:     make(map[string]Key, len(file.Routes)),
	}

	addSidebar := func(id, name string) error {
		k, err := ParseKey(name)
		if err != nil {
			return fmt.Errorf("sidebar item %q: %w", id, err)
		}
		if existing, ok := c.sidebar[id]; ok && existing != k {
			return fmt.Errorf("sidebar item %q mapped to both %s and %s", id, existing, k)
		}
		c.sidebar[id] = k
		return nil
	}

	for _, cat := range file.Categories {
		for _, item := range cat.Items {
			parent, err := ParseKey(item.Key)
			if err != nil {
				return nil, fmt.Errorf("category %q: %w", cat.ID, err)
			}
			for _, child := range item.Children {
				k, err := ParseKey(child.Key)
				if err != nil {
					return nil, fmt.Errorf("category %q: %w", cat.ID, err)
				}
				c.children[parent] = append(c.children[parent], k)
				if child.SidebarID != "" {
					if err := addSidebar(child.SidebarID, child.Key); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	for id, name := range file.Sidebar {
		if err := addSidebar(id, name); err != nil {
			return nil, err
		}
	}

	for path, name := range file.Routes {
		k, err := ParseKey(name)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", path, err)
		}
		c.routes[path] = k
		c.byLength = append(c.byLength, routeEntry{prefix: path, key: k})
	}
	sort.Slice(c.byLength, func(i, j int) bool {
		if len(c.byLength[i].prefix) != len(c.byLength[j].prefix) {
			return len(c.byLength[i].prefix) > len(c.byLength[j].prefix)
		}
		return c.byLength[i].prefix < c.byLength[j].prefix
	})

	return c, nil
}

// Categories returns the admin category tree
func (c *Catalog) Categories() []Category {
	return c.categories
}

// ChildKeys returns the navigation sub-item keys under a section key
func (c *Catalog) ChildKeys(parent Key) []Key {
	return c.children[parent]
}

// SidebarKey returns the key gating a sidebar item
func (c *Catalog) SidebarKey(itemID string) (Key, bool) {
	k, ok := c.sidebar[itemID]
	return k, ok
}

// KeyForRoute returns the key gating a path: exact match first, then the longest prefix
func (c *Catalog) KeyForRoute(path string) (Key, bool) {
	if k, ok := c.routes[path]; ok {
		return k, true
	}
	for _, r := range c.byLength {
		if strings.HasPrefix(path, r.prefix) {
			return r.key, true
		}
	}
	return 0, false
}
