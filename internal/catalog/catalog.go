// Package catalog is the read-only student metadata bundled with the
// companion: names, schools, clubs and portraits keyed by catalog id.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embedded []byte

const (
	RoleStriker = "STRIKER"
	RoleSpecial = "SPECIAL"
)

var attackTypes = map[string]bool{"EXPLOSIVE": true, "PIERCING": true, "MYSTIC": true}

type Academy struct {
	Name  string `yaml:"name"`
	Color string `yaml:"color"`
}

type Club struct {
	Name        string `yaml:"name"`
	Academy     string `yaml:"academy"`
	Description string `yaml:"description"`
}

type LocalizedName struct {
	ZH string `yaml:"zh"`
	EN string `yaml:"en"`
}

// Entry is one student of the catalog.
type Entry struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	NameJP       string `json:"nameJp,omitempty"`
	NameEn       string `json:"nameEn,omitempty"`
	Academy      string `json:"academy"`
	Club         string `json:"club"`
	Rarity       int    `json:"rarity"`
	Role         string `json:"role"`
	AttackType   string `json:"attackType"`
	Avatar       string `json:"avatar,omitempty"`
	Relationship int    `json:"relationship"`
	Unlocked     bool   `json:"unlocked"`
}

type studentDoc struct {
	ID           string `yaml:"id"`
	Academy      string `yaml:"academy"`
	Club         string `yaml:"club"`
	Rarity       int    `yaml:"rarity"`
	Role         string `yaml:"role"`
	AttackType   string `yaml:"attack_type"`
	Relationship int    `yaml:"relationship"`
	Unlocked     bool   `yaml:"unlocked"`
}

type document struct {
	PortraitBase string                   `yaml:"portrait_base"`
	Academies    map[string]Academy       `yaml:"academies"`
	Clubs        map[string]Club          `yaml:"clubs"`
	Names        map[string]LocalizedName `yaml:"names"`
	Portraits    map[string][]string      `yaml:"portraits"`
	Aliases      map[string]string        `yaml:"aliases"`
	Students     []studentDoc             `yaml:"students"`
}

// Catalog is immutable after Parse and safe for concurrent use.
type Catalog struct {
	portraitBase string
	academies    map[string]Academy
	clubs        map[string]Club
	names        map[string]LocalizedName
	portraits    map[string][]string
	aliases      map[string]string
	entries      []Entry
	byID         map[string]int
}

var defaultCatalog *Catalog

func init() {
	c, err := Parse(embedded)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	defaultCatalog = c
}

// Default returns the bundled catalog.
func Default() *Catalog { return defaultCatalog }

// Load reads a catalog file in the bundled format.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a catalog document.
func Parse(b []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := &Catalog{
		portraitBase: doc.PortraitBase,
		academies:    upperKeys(doc.Academies),
		clubs:        upperKeys(doc.Clubs),
		names:        upperKeys(doc.Names),
		portraits:    upperKeys(doc.Portraits),
		aliases:      make(map[string]string, len(doc.Aliases)),
		byID:         make(map[string]int, len(doc.Students)),
	}
	if c.portraitBase == "" {
		c.portraitBase = "/portraits/"
	}

	var errs []error
	for name, club := range c.clubs {
		if _, ok := c.academies[club.Academy]; !ok {
			errs = append(errs, fmt.Errorf("club %s: unknown academy %q", name, club.Academy))
		}
	}
	for i, s := range doc.Students {
		id := strings.ToUpper(strings.TrimSpace(s.ID))
		if err := c.validate(i, id, s); err != nil {
			errs = append(errs, err)
			continue
		}
		c.byID[id] = len(c.entries)
		c.entries = append(c.entries, Entry{
			ID:           id,
			Name:         c.Name(id, "zh"),
			NameEn:       c.Name(id, "en"),
			Academy:      s.Academy,
			Club:         s.Club,
			Rarity:       s.Rarity,
			Role:         s.Role,
			AttackType:   s.AttackType,
			Avatar:       c.DefaultPortrait(id),
			Relationship: s.Relationship,
			Unlocked:     s.Unlocked,
		})
	}
	for alias, target := range doc.Aliases {
		target = strings.ToUpper(target)
		if _, ok := c.byID[target]; !ok {
			errs = append(errs, fmt.Errorf("alias %s: unknown student %q", alias, target))
			continue
		}
		c.aliases[strings.ToLower(alias)] = target
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) validate(i int, id string, s studentDoc) error {
	switch {
	case id == "":
		return fmt.Errorf("student %d: missing id", i)
	case c.has(id):
		return fmt.Errorf("student %s: duplicate id", id)
	}
	if _, ok := c.academies[s.Academy]; !ok {
		return fmt.Errorf("student %s: unknown academy %q", id, s.Academy)
	}
	if _, ok := c.clubs[s.Club]; !ok {
		return fmt.Errorf("student %s: unknown club %q", id, s.Club)
	}
	if s.Rarity < 1 || s.Rarity > 3 {
		return fmt.Errorf("student %s: rarity %d out of range", id, s.Rarity)
	}
	if s.Role != RoleStriker && s.Role != RoleSpecial {
		return fmt.Errorf("student %s: unknown role %q", id, s.Role)
	}
	if !attackTypes[s.AttackType] {
		return fmt.Errorf("student %s: unknown attack type %q", id, s.AttackType)
	}
	if s.Relationship < 1 || s.Relationship > 10 {
		return fmt.Errorf("student %s: relationship %d out of range", id, s.Relationship)
	}
	return nil
}

func (c *Catalog) has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

func upperKeys[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[strings.ToUpper(k)] = v
	}
	return out
}

// All returns every entry in catalog order.
func (c *Catalog) All() []Entry {
	return append([]Entry(nil), c.entries...)
}

// Get looks up id case-insensitively.
func (c *Catalog) Get(id string) (Entry, bool) {
	i, ok := c.byID[strings.ToUpper(id)]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

func (c *Catalog) filter(keep func(Entry) bool) []Entry {
	var out []Entry
	for _, e := range c.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func (c *Catalog) ByClub(club string) []Entry {
	return c.filter(func(e Entry) bool { return e.Club == club })
}

func (c *Catalog) ByAcademy(academy string) []Entry {
	return c.filter(func(e Entry) bool { return e.Academy == academy })
}

func (c *Catalog) Unlocked() []Entry {
	return c.filter(func(e Entry) bool { return e.Unlocked })
}

// ByRelationship returns all entries, highest relationship first. Ties keep
// catalog order.
func (c *Catalog) ByRelationship() []Entry {
	out := c.All()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Relationship > out[j].Relationship })
	return out
}

// Academy returns the academy metadata for key.
func (c *Catalog) Academy(key string) (Academy, bool) {
	a, ok := c.academies[strings.ToUpper(key)]
	return a, ok
}

// Club returns the club metadata for key.
func (c *Catalog) Club(key string) (Club, bool) {
	cl, ok := c.clubs[strings.ToUpper(key)]
	return cl, ok
}

// HasPortrait reports whether id has at least one portrait.
func (c *Catalog) HasPortrait(id string) bool {
	return len(c.portraits[strings.ToUpper(id)]) > 0
}

// DefaultPortrait returns the first portrait path of id, or "".
func (c *Catalog) DefaultPortrait(id string) string {
	p := c.portraits[strings.ToUpper(id)]
	if len(p) == 0 {
		return ""
	}
	return c.portraitBase + p[0]
}

// Portraits returns every portrait path of id.
func (c *Catalog) Portraits(id string) []string {
	p := c.portraits[strings.ToUpper(id)]
	out := make([]string, len(p))
	for i, f := range p {
		out[i] = c.portraitBase + f
	}
	return out
}

// Name returns the display name of id in lang ("zh" or "en"). Missing
// translations fall back to Chinese, then to id itself.
func (c *Catalog) Name(id, lang string) string {
	n, ok := c.names[strings.ToUpper(id)]
	if !ok {
		return id
	}
	if lang == "en" && n.EN != "" {
		return n.EN
	}
	if n.ZH != "" {
		return n.ZH
	}
	return id
}

// Alias maps a lower-case remote id to a catalog id.
func (c *Catalog) Alias(remoteID string) (string, bool) {
	id, ok := c.aliases[strings.ToLower(remoteID)]
	return id, ok
}

// Aliases returns a copy of the alias table.
func (c *Catalog) Aliases() map[string]string {
	out := make(map[string]string, len(c.aliases))
	for k, v := range c.aliases {
		out[k] = v
	}
	return out
}
