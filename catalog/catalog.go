// Package catalog provides the list of sounds a mix can be built from.
package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"Soundscape/config"
	"Soundscape/db"
	"Soundscape/logger"
	"Soundscape/model"
	"Soundscape/repository"
)

//go:embed sounds.yaml
var embedded []byte

type document struct {
	Sounds []model.Sound `yaml:"sounds"`
}

// Parse reads a catalog document. Entries need a filename and a category;
// unknown keys are rejected.
func Parse(r io.Reader) ([]model.Sound, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc document
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	seen := make(map[string]bool, len(doc.Sounds))
	for i, s := range doc.Sounds {
		if s.Filename == "" || s.Category == "" {
			return nil, fmt.Errorf("parse catalog: entry %d: filename and category are required", i)
		}
		if seen[s.Path()] {
			return nil, fmt.Errorf("parse catalog: duplicate sound %s", s.Path())
		}
		seen[s.Path()] = true
		if s.DisplayName == "" {
			doc.Sounds[i].DisplayName = s.Filename
		}
	}
	return doc.Sounds, nil
}

// Embedded returns the catalog compiled into the binary.
func Embedded() ([]model.Sound, error) {
	return Parse(bytes.NewReader(embedded))
}

// Open returns the catalog selected by CATALOG_SOURCE. The db source
// connects to MySQL and migrates the sounds table.
func Open(cfg *config.Config) (repository.SoundRepository, error) {
	switch cfg.CatalogSource {
	case "", "embedded":
		sounds, err := Embedded()
		if err != nil {
			return nil, err
		}
		logger.Info("Using embedded sound catalog", logger.Int("sounds", len(sounds)))
		return repository.NewStaticSoundRepository(sounds), nil
	case "db":
		if err := db.ConnectGormDB(cfg); err != nil {
			return nil, err
		}
		if err := db.AutoMigrateModels(&model.Sound{}); err != nil {
			return nil, err
		}
		return repository.NewGormSoundRepository(db.GormDB), nil
	default:
		return nil, fmt.Errorf("unknown catalog source %q", cfg.CatalogSource)
	}
}

// Seed writes the embedded catalog into repo.
func Seed(ctx context.Context, repo repository.SoundRepository) (int64, error) {
	sounds, err := Embedded()
	if err != nil {
		return 0, err
	}
	n, err := repo.Upsert(ctx, sounds)
	if err != nil {
		return 0, fmt.Errorf("seed catalog: %w", err)
	}
	logger.Info("Catalog seeded", logger.Int("sounds", len(sounds)), logger.Int64("rows", n))
	return n, nil
}

// Categories lists the catalog grouped by category.
func Categories(ctx context.Context, repo repository.SoundRepository) ([]model.Category, error) {
	sounds, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sounds: %w", err)
	}
	return model.GroupByCategory(sounds), nil
}
