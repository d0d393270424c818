package roster

import (
	"strings"

	"github.com/gaspardpetit/shittim/internal/bridge"
	"github.com/gaspardpetit/shittim/internal/catalog"
)

// FallbackID is the catalog id shown when the roster cannot be fetched.
const FallbackID = "ARONA"

// Placeholder defaults for remote students missing from the catalog.
const (
	PlaceholderAcademy    = "SRT"
	PlaceholderClub       = "OTHER"
	PlaceholderRole       = catalog.RoleSpecial
	PlaceholderAttackType = "MYSTIC"
)

// Record is a registered student: catalog presentation data with the
// remote session state laid over it.
type Record struct {
	catalog.Entry
	HasActiveSession bool                `json:"hasActiveSession"`
	HistorySize      int                 `json:"historySize"`
	AnimaData        bridge.AnimaStudent `json:"animaData"`
	// Placeholder is set when no catalog entry matched.
	Placeholder bool `json:"placeholder,omitempty"`
}

// Match describes how a remote student was paired with the catalog.
type Match string

const (
	MatchAlias Match = "alias"
	MatchID    Match = "id"
	MatchName  Match = "name"
	MatchNone  Match = "none"
)

// Find resolves the catalog entry for remote: alias table first, then the
// id ignoring case, then the display name ignoring case.
func Find(cat *catalog.Catalog, remote bridge.AnimaStudent) (catalog.Entry, Match) {
	if id, ok := cat.Alias(remote.ID); ok {
		if e, ok := cat.Get(id); ok {
			return e, MatchAlias
		}
	}
	if e, ok := cat.Get(remote.ID); ok && remote.ID != "" {
		return e, MatchID
	}
	if e, ok := findByName(cat, remote); ok {
		return e, MatchName
	}
	return catalog.Entry{}, MatchNone
}

func findByName(cat *catalog.Catalog, remote bridge.AnimaStudent) (catalog.Entry, bool) {
	if remote.Name == "" && remote.NameEn == "" {
		return catalog.Entry{}, false
	}
	entries := cat.All()
	for _, e := range entries {
		if remote.Name != "" && strings.EqualFold(e.Name, remote.Name) {
			return e, true
		}
	}
	for _, e := range entries {
		if remote.Name != "" && strings.EqualFold(e.NameEn, remote.Name) {
			return e, true
		}
		if remote.NameEn != "" && strings.EqualFold(e.NameEn, remote.NameEn) {
			return e, true
		}
	}
	return catalog.Entry{}, false
}

// Placeholder builds a catalog entry for a remote student the catalog does
// not know.
func Placeholder(cat *catalog.Catalog, remote bridge.AnimaStudent) catalog.Entry {
	name := remote.Name
	if name == "" {
		name = remote.ID
	}
	return catalog.Entry{
		ID:           strings.ToUpper(remote.ID),
		Name:         name,
		NameEn:       remote.NameEn,
		Academy:      PlaceholderAcademy,
		Club:         PlaceholderClub,
		Rarity:       1,
		Role:         PlaceholderRole,
		AttackType:   PlaceholderAttackType,
		Avatar:       cat.DefaultPortrait(remote.ID),
		Relationship: 1,
		Unlocked:     true,
	}
}

// Merge pairs one remote student with its catalog entry, or a placeholder.
// Registered students are always unlocked.
func Merge(cat *catalog.Catalog, remote bridge.AnimaStudent) Record {
	entry, how := Find(cat, remote)
	placeholder := how == MatchNone
	if placeholder {
		entry = Placeholder(cat, remote)
	}
	entry.Unlocked = true
	return Record{
		Entry:            entry,
		HasActiveSession: remote.HasActiveSession,
		HistorySize:      remote.HistorySize,
		AnimaData:        remote,
		Placeholder:      placeholder,
	}
}

// Fallback is the single record shown when the roster is unavailable.
func Fallback(cat *catalog.Catalog) Record {
	remote := bridge.AnimaStudent{ID: strings.ToLower(FallbackID), Name: "阿罗娜"}
	entry, ok := cat.Get(FallbackID)
	if !ok {
		entry = Placeholder(cat, remote)
	}
	entry.Unlocked = true
	return Record{Entry: entry, AnimaData: remote}
}
