package model

import (
	"path"
	"time"
)

// Sound is one entry of the sound catalog.
type Sound struct {
	ID          uint      `gorm:"primaryKey" json:"-" yaml:"-"`
	Filename    string    `gorm:"size:255;not null;uniqueIndex:idx_sound_file" json:"filename" yaml:"filename"`
	Category    string    `gorm:"size:64;not null;uniqueIndex:idx_sound_file;index" json:"category" yaml:"category"`
	DisplayName string    `gorm:"size:255" json:"displayName" yaml:"displayName"`
	Tags        []string  `gorm:"serializer:json" json:"tags" yaml:"tags"`
	CreatedAt   time.Time `json:"-" yaml:"-"`
	UpdatedAt   time.Time `json:"-" yaml:"-"`
}

// Path is the sound's location relative to the sound source root, which is
// also the soundPath a track uses.
func (s Sound) Path() string {
	return path.Join("sounds", s.Category, s.Filename)
}

// CatalogEntry is the API view of a Sound.
type CatalogEntry struct {
	Path        string   `json:"path"`
	Filename    string   `json:"filename"`
	DisplayName string   `json:"displayName"`
	Tags        []string `json:"tags"`
}

// Category groups catalog entries for listing.
type Category struct {
	Name   string         `json:"name"`
	Sounds []CatalogEntry `json:"sounds"`
}

// GroupByCategory keeps categories and their sounds in first-seen order.
func GroupByCategory(sounds []Sound) []Category {
	var out []Category
	idx := make(map[string]int)
	for _, s := range sounds {
		i, ok := idx[s.Category]
		if !ok {
			i = len(out)
			idx[s.Category] = i
			out = append(out, Category{Name: s.Category})
		}
		out[i].Sounds = append(out[i].Sounds, CatalogEntry{
			Path:        s.Path(),
			Filename:    s.Filename,
			DisplayName: s.DisplayName,
			Tags:        s.Tags,
		})
	}
	return out
}
