package rules_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"defaulter/internal/rules"
	"defaulter/internal/services"
)

const sampleDocument = `
plex_server_url: http://ignored
groups:
  kids: [tim]
  family:
    - alice
    - bob
  everyone: $ALL
filters:
  TV Shows:
    kids:
      audio:
        - include:
            language: English
      subtitles: disabled
  Movies:
    family:
      audio:
        - include:
            language: English
            codec: [truehd, atmos]
          exclude:
            title: Commentary
          on_match:
            subtitles: disabled
        - include:
            language: Japanese
      subtitles:
        - include:
            language: English
          exclude:
            title: [SDH, Forced]
    everyone:
      subtitles: disabled
`

func TestParsePreservesOrder(t *testing.T) {
	set, err := rules.Parse([]byte(sampleDocument))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(set.Groups) != 3 || set.Groups[0].Name != "kids" || set.Groups[2].Name != "everyone" {
		t.Fatalf("unexpected groups: %+v", set.Groups)
	}
	if got := set.Groups[2].Members; len(got) != 1 || got[0] != rules.AllViewers {
		t.Fatalf("expected scalar $ALL member, got %v", got)
	}
	if len(set.Libraries) != 2 || set.Libraries[0].Library != "TV Shows" || set.Libraries[1].Library != "Movies" {
		t.Fatalf("unexpected libraries: %+v", set.Libraries)
	}
	movies, ok := set.Library("movies")
	if !ok {
		t.Fatal("expected case-insensitive library lookup")
	}
	if movies.Groups[0].Group != "family" || movies.Groups[1].Group != "everyone" {
		t.Fatalf("unexpected group order: %+v", movies.Groups)
	}
	family := movies.Groups[0].Filter
	if family.Audio == nil || len(family.Audio.Chain) != 2 {
		t.Fatalf("expected two audio rules, got %+v", family.Audio)
	}
	first := family.Audio.Chain[0]
	if codecs := first.Include["codec"]; len(codecs) != 2 || codecs[1] != "atmos" {
		t.Fatalf("unexpected codec include: %v", codecs)
	}
	if first.OnMatch == nil || first.OnMatch.Subtitles == nil || !first.OnMatch.Subtitles.Disabled {
		t.Fatalf("expected on_match subtitles disabled, got %+v", first.OnMatch)
	}
	if !movies.Groups[1].Filter.Subtitles.Disabled {
		t.Fatal("expected disabled subtitles for everyone")
	}
}

func TestParseRejectsNestedOnMatch(t *testing.T) {
	doc := `
groups:
  family: [alice]
filters:
  Movies:
    family:
      audio:
        - include: {language: English}
          on_match:
            subtitles:
              - include: {language: English}
                on_match:
                  audio:
                    - include: {language: Japanese}
`
	_, err := rules.Parse([]byte(doc))
	if err == nil {
		t.Fatal("expected nested on_match to be rejected")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "nested") {
		t.Fatalf("expected nesting explanation, got %v", err)
	}
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown group": `
groups:
  family: [alice]
filters:
  Movies:
    strangers:
      subtitles: disabled
`,
		"audio disabled": `
groups:
  family: [alice]
filters:
  Movies:
    family:
      audio: disabled
`,
		"unknown rule key": `
groups:
  family: [alice]
filters:
  Movies:
    family:
      audio:
        - includes: {language: English}
`,
		"empty filter": `
groups:
  family: [alice]
filters:
  Movies:
    family: {}
`,
		"bad subtitles literal": `
groups:
  family: [alice]
filters:
  Movies:
    family:
      subtitles: off
`,
		"no filters": `
groups:
  family: [alice]
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := rules.Parse([]byte(doc)); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(sampleDocument), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	set, err := rules.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got := set.GroupsContaining("alice"); len(got) != 1 || got[0] != "family" {
		t.Fatalf("unexpected groups containing alice: %v", got)
	}
	if _, err := rules.Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for missing file, got %v", err)
	}
}
