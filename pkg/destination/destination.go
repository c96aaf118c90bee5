package destination

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

var (
	ErrUnknownDestination = fmt.Errorf("unknown destination")
	ErrNoDestinationID    = fmt.Errorf("destination id is empty")
)

type Type string

const (
	TypeLocal Type = "local"
	TypeCloud Type = "cloud"
	TypePDF   Type = "pdf"
)

// Destination is a target printer or device together with its capabilities.
type Destination struct {
	ID           string `json:"id" yaml:"id"`
	DisplayName  string `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Type         Type   `json:"type,omitempty" yaml:"type,omitempty"`
	Capabilities CDD    `json:"capabilities" yaml:"capabilities"`
}

func (d Destination) Caps() Capabilities {
	return d.Capabilities.Printer
}

// Provider fetches capabilities for a destination.
type Provider interface {
	Capabilities(ctx context.Context, id string) (Destination, error)
}

// Template returns a destination with the reference capability set:
// letter and square media, color or monochrome, duplex and two resolutions.
func Template(id string) Destination {
	return Destination{
		ID:          id,
		DisplayName: id,
		Type:        TypeLocal,
		Capabilities: CDD{
			Version: SupportedCDDVersion,
			Printer: Capabilities{
				Collate: &CollateCapability{Default: true},
				Copies:  &CopiesCapability{Default: 1, Max: 1000},
				Color: &ColorCapability{
					Option: []ColorOption{
						{Type: ColorStandardColor, IsDefault: true},
						{Type: ColorStandardMonochrome},
					},
				},
				PageOrientation: &PageOrientationCapability{
					Option: []OrientationOption{
						{Type: OrientationPortrait, IsDefault: true},
						{Type: OrientationLandscape},
						{Type: OrientationAuto},
					},
				},
				Duplex: &DuplexCapability{
					Option: []DuplexOption{
						{Type: DuplexNone, IsDefault: true},
						{Type: DuplexLongEdge},
						{Type: DuplexShortEdge},
					},
				},
				DPI: &DPICapability{
					Option: []DPI{
						{HorizontalDPI: 200, VerticalDPI: 200, IsDefault: true},
						{HorizontalDPI: 100, VerticalDPI: 100},
					},
				},
				MediaSize: &MediaSizeCapability{
					Option: []MediaSize{
						{
							Name:              "NA_LETTER",
							WidthMicrons:      215900,
							HeightMicrons:     279400,
							IsDefault:         true,
							CustomDisplayName: "Letter",
						},
						{
							Name:              "CUSTOM_SQUARE",
							WidthMicrons:      215900,
							HeightMicrons:     215900,
							CustomDisplayName: "CUSTOM_SQUARE",
						},
					},
				},
			},
		},
	}
}

// Catalog is an in-memory Provider
type Catalog struct {
	mu           sync.RWMutex
	destinations map[string]Destination
}

func NewCatalog(destinations ...Destination) *Catalog {
	c := &Catalog{
		destinations: make(map[string]Destination, len(destinations)),
	}
	for _, d := range destinations {
		c.destinations[d.ID] = d
	}

	return c
}

func (c *Catalog) Add(d Destination) error {
	if d.ID == "" {
		return ErrNoDestinationID
	}
	if err := d.Capabilities.Validate(); err != nil {
		return fmt.Errorf("destination %q: %w", d.ID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.destinations[d.ID] = d
	return nil
}

func (c *Catalog) Capabilities(ctx context.Context, id string) (Destination, error) {
	if err := ctx.Err(); err != nil {
		return Destination{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.destinations[id]
	if !ok {
		return Destination{}, fmt.Errorf("%w: %q", ErrUnknownDestination, id)
	}

	return d, nil
}

// List returns all known destinations ordered by ID
func (c *Catalog) List() []Destination {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]Destination, 0, len(c.destinations))
	for _, d := range c.destinations {
		result = append(result, d)
	}
	slices.SortFunc(result, func(a, b Destination) int {
		return strings.Compare(a.ID, b.ID)
	})

	return result
}

// ParseDestination decodes a destination document (JSON or YAML).
func ParseDestination(data []byte) (Destination, error) {
	var result Destination
	if err := decode(data, &result); err != nil {
		return result, fmt.Errorf("failed to parse destination: %w", err)
	}

	if result.ID == "" {
		return result, ErrNoDestinationID
	}
	if result.DisplayName == "" {
		result.DisplayName = result.ID
	}
	if result.Capabilities.Version == "" {
		result.Capabilities.Version = SupportedCDDVersion
	}

	return result, result.Capabilities.Validate()
}

// LoadCatalog reads destination documents from files or directories.
// Directories are scanned (non-recursively) for .json, .yaml and .yml files.
func LoadCatalog(paths ...string) (*Catalog, error) {
	catalog := NewCatalog()

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}

		files := []string{path}
		if info.IsDir() {
			entries, err := os.ReadDir(path)
			if err != nil {
				return nil, err
			}

			files = files[:0]
			for _, entry := range entries {
				switch filepath.Ext(entry.Name()) {
				case ".json", ".yaml", ".yml":
					if !entry.IsDir() {
						files = append(files, filepath.Join(path, entry.Name()))
					}
				}
			}
		}

		for _, filename := range files {
			data, err := os.ReadFile(filename)
			if err != nil {
				return nil, err
			}

			d, err := ParseDestination(data)
			if err != nil {
				return nil, fmt.Errorf("%v: %w", filename, err)
			}

			if err := catalog.Add(d); err != nil {
				return nil, err
			}
		}
	}

	return catalog, nil
}
