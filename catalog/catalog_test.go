package catalog

import (
	"context"
	"strings"
	"testing"

	"Soundscape/config"
	"Soundscape/repository"
)

func TestEmbeddedCatalog(t *testing.T) {
	sounds, err := Embedded()
	if err != nil {
		t.Fatal(err)
	}
	if len(sounds) != 107 {
		t.Fatalf("sounds = %d, want 107", len(sounds))
	}
	first := sounds[0]
	if first.Filename != "beehive.mp3" || first.Category != "animals" || first.DisplayName != "Beehive" {
		t.Fatalf("first = %+v", first)
	}
	if first.Path() != "sounds/animals/beehive.mp3" {
		t.Fatalf("path = %s", first.Path())
	}
	if len(first.Tags) != 4 || first.Tags[2] != "insect" {
		t.Fatalf("tags = %v", first.Tags)
	}
}

func TestCategoriesKeepOrder(t *testing.T) {
	repo, err := Open(&config.Config{CatalogSource: "embedded"})
	if err != nil {
		t.Fatal(err)
	}
	cats, err := Categories(context.Background(), repo)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	total := 0
	for _, c := range cats {
		names = append(names, c.Name)
		total += len(c.Sounds)
	}
	if names[0] != "animals" || names[1] != "nature" {
		t.Fatalf("categories = %v", names)
	}
	if total != 107 {
		t.Fatalf("grouped %d sounds", total)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing category", "sounds:\n  - filename: a.mp3\n"},
		{"unknown key", "sounds:\n  - filename: a.mp3\n    category: x\n    volume: 1\n"},
		{"duplicate", "sounds:\n  - {filename: a.mp3, category: x}\n  - {filename: a.mp3, category: x}\n"},
		{"not yaml", "sounds: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(tt.doc)); err == nil {
				t.Fatal("accepted")
			}
		})
	}
}

func TestParseDefaultsDisplayName(t *testing.T) {
	sounds, err := Parse(strings.NewReader("sounds:\n  - {filename: hum.wav, category: noise}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if sounds[0].DisplayName != "hum.wav" {
		t.Fatalf("display name = %q", sounds[0].DisplayName)
	}
}

func TestSeedReadOnly(t *testing.T) {
	if _, err := Seed(context.Background(), repository.NewStaticSoundRepository(nil)); err == nil {
		t.Fatal("seeding a static catalog should fail")
	}
}

func TestOpenUnknownSource(t *testing.T) {
	if _, err := Open(&config.Config{CatalogSource: "ftp"}); err == nil {
		t.Fatal("accepted unknown source")
	}
}
