package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	if n := len(c.All()); n != 34 {
		t.Fatalf("expected 34 students, got %d", n)
	}
	arona, ok := c.Get("arona")
	if !ok {
		t.Fatalf("ARONA missing")
	}
	if arona.ID != "ARONA" || arona.Name != "阿罗娜" || arona.NameEn != "Arona" {
		t.Fatalf("unexpected entry %+v", arona)
	}
	if arona.Avatar != "/portraits/ba_portrait_OS_ARONA.png" || arona.Relationship != 10 {
		t.Fatalf("unexpected entry %+v", arona)
	}
	plana, _ := c.Get("PLANA")
	if plana.Unlocked {
		t.Fatalf("PLANA should be locked")
	}
}

func TestLookups(t *testing.T) {
	c := Default()
	if got := c.ByClub("GAME_DEV"); len(got) != 4 || got[0].ID != "ARIS" {
		t.Fatalf("unexpected game dev club %+v", got)
	}
	for _, e := range c.ByAcademy("ABYDOS") {
		if e.Academy != "ABYDOS" {
			t.Fatalf("wrong academy %+v", e)
		}
	}
	if len(c.Unlocked()) != len(c.All())-1 {
		t.Fatalf("expected only PLANA locked")
	}
	byRel := c.ByRelationship()
	if byRel[0].ID != "ARONA" {
		t.Fatalf("expected ARONA first, got %s", byRel[0].ID)
	}
	for i := 1; i < len(byRel); i++ {
		if byRel[i].Relationship > byRel[i-1].Relationship {
			t.Fatalf("not sorted at %d", i)
		}
	}
	if club, ok := c.Club("problem_solver_68"); !ok || club.Academy != "GEHENNA" {
		t.Fatalf("unexpected club %+v", club)
	}
	if a, ok := c.Academy("srt"); !ok || a.Color != "#9B59B6" {
		t.Fatalf("unexpected academy %+v", a)
	}
}

func TestNamesAndPortraits(t *testing.T) {
	c := Default()
	cases := []struct {
		id, lang, want string
	}{
		{"KAYUKO", "en", "Kayoko"},
		{"kayuko", "zh", "佳代子"},
		{"SENSEI", "en", "Sensei"},
		{"NOBODY", "en", "NOBODY"},
	}
	for _, tc := range cases {
		if got := c.Name(tc.id, tc.lang); got != tc.want {
			t.Fatalf("Name(%s,%s) = %q, want %q", tc.id, tc.lang, got, tc.want)
		}
	}
	if got := c.Portraits("hoshino"); len(got) != 8 || got[7] != "/portraits/ba_portrait_HOSHINO8.png" {
		t.Fatalf("unexpected portraits %v", got)
	}
	if c.DefaultPortrait("nobody") != "" || c.HasPortrait("nobody") {
		t.Fatalf("unknown id has a portrait")
	}
	if !c.HasPortrait("SENSEI") {
		t.Fatalf("SENSEI portrait missing")
	}
}

func TestAliases(t *testing.T) {
	c := Default()
	for remote, want := range map[string]string{"arona": "ARONA", "alice": "ARIS", "Aris": "ARIS", "aru": "ARU"} {
		if got, ok := c.Alias(remote); !ok || got != want {
			t.Fatalf("Alias(%s) = %q, want %q", remote, got, want)
		}
	}
	if _, ok := c.Alias("hina"); ok {
		t.Fatalf("hina has no alias")
	}
	a := c.Aliases()
	a["arona"] = "PLANA"
	if got, _ := c.Alias("arona"); got != "ARONA" {
		t.Fatalf("Aliases returned shared map")
	}
}

const minimal = `
academies:
  MILLENNIUM: {name: 千年, color: "#3498DB"}
clubs:
  OTHER: {name: 其他, academy: MILLENNIUM}
names:
  ARONA: {zh: 阿罗娜, en: Arona}
aliases:
  arona: ARONA
students:
  - {id: arona, academy: MILLENNIUM, club: OTHER, rarity: 3, role: SPECIAL, attack_type: MYSTIC, relationship: 10, unlocked: true}
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(minimal), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	e, ok := c.Get("ARONA")
	if !ok || e.ID != "ARONA" || e.Avatar != "" {
		t.Fatalf("unexpected entry %+v", e)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"academy":      strings.Replace(minimal, "academy: MILLENNIUM, club", "academy: NOWHERE, club", 1),
		"club":         strings.Replace(minimal, "club: OTHER,", "club: NONE,", 1),
		"rarity":       strings.Replace(minimal, "rarity: 3", "rarity: 4", 1),
		"role":         strings.Replace(minimal, "role: SPECIAL", "role: TANK", 1),
		"attack":       strings.Replace(minimal, "attack_type: MYSTIC", "attack_type: SONIC", 1),
		"relationship": strings.Replace(minimal, "relationship: 10", "relationship: 11", 1),
		"alias":        strings.Replace(minimal, "arona: ARONA", "arona: PLANA", 1),
		"duplicate":    minimal + "  - {id: ARONA, academy: MILLENNIUM, club: OTHER, rarity: 3, role: SPECIAL, attack_type: MYSTIC, relationship: 1}\n",
		"syntax":       "students: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
