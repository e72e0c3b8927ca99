package fieldquest

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

//go:embed catalog.json
var defaultCatalog []byte

var ErrInvalidCatalog = errors.New("invalid catalog")

// Catalog is the static, author-supplied puzzle set. It is immutable once
// parsed.
type Catalog struct {
	ID   string   `json:"id"`
	Main []Puzzle `json:"main"`
	Side []Puzzle `json:"side"`

	byID map[string]Puzzle
}

// DefaultCatalog returns the embedded Yongchun Pi catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog from path, or the embedded one when path is
// empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	for i := range c.Main {
		c.Main[i].Kind = KindMain
	}
	for i := range c.Side {
		c.Side[i].Kind = KindSide
		c.Side[i].FragmentID = NoFragment
		c.Side[i].UploadOnly = true
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks ids are unique and main fragment indices are unique and
// in [0, FragmentTotal).
func (c *Catalog) Validate() error {
	c.byID = make(map[string]Puzzle, len(c.Main)+len(c.Side))
	for _, p := range c.All() {
		if p.ID == "" {
			return fmt.Errorf("%w: puzzle %q has no id", ErrInvalidCatalog, p.Title)
		}
		if _, dup := c.byID[p.ID]; dup {
			return fmt.Errorf("%w: duplicate puzzle id %q", ErrInvalidCatalog, p.ID)
		}
		if p.XPReward < 0 {
			return fmt.Errorf("%w: puzzle %q has negative reward", ErrInvalidCatalog, p.ID)
		}
		if q := p.Quiz; q != nil {
			switch q.Shape {
			case ShapeText, ShapePair, ShapeCompound:
			case "":
				q.Shape = ShapeText
			default:
				return fmt.Errorf("%w: puzzle %q has unknown quiz shape %q", ErrInvalidCatalog, p.ID, q.Shape)
			}
		}
		c.byID[p.ID] = p
	}

	total := c.FragmentTotal()
	seen := make(map[int]bool, total)
	for _, p := range c.Main {
		if !p.HasFragment() {
			continue
		}
		if p.FragmentID < 0 || p.FragmentID >= total {
			return fmt.Errorf("%w: puzzle %q fragment %d out of range [0,%d)", ErrInvalidCatalog, p.ID, p.FragmentID, total)
		}
		if seen[p.FragmentID] {
			return fmt.Errorf("%w: fragment %d assigned twice", ErrInvalidCatalog, p.FragmentID)
		}
		seen[p.FragmentID] = true
	}
	return nil
}

// FragmentTotal is the number of fragments that ends the mission.
func (c *Catalog) FragmentTotal() int {
	n := 0
	for _, p := range c.Main {
		if p.HasFragment() {
			n++
		}
	}
	return n
}

func (c *Catalog) Puzzle(id string) (Puzzle, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// All returns main puzzles followed by side puzzles.
func (c *Catalog) All() []Puzzle {
	out := make([]Puzzle, 0, len(c.Main)+len(c.Side))
	out = append(out, c.Main...)
	return append(out, c.Side...)
}
