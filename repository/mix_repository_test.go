package repository

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"Soundscape/db"
	"Soundscape/model"
)

func newRepo() (*MixRepository, *db.MemoryStore) {
	store := db.NewMemoryStore()
	r := NewMixRepository(store)
	r.now = func() time.Time { return time.Date(2024, 3, 1, 20, 15, 0, 0, time.UTC) }
	return r, store
}

func sampleMix() *model.Mix {
	rain := model.DefaultTrackParams("sounds/rain/light.mp3")
	rain.Volume = 0.3
	rain.Pan = -0.4
	rain.LoopMode = model.LoopRandomInterval
	rain.MinIntervalSec = 5
	rain.MaxIntervalSec = 20
	rain.FadeOutEnabled = false

	birds := model.DefaultTrackParams("sounds/birds/robin.ogg")
	birds.AutomationEnabled = true
	birds.VolumeAutomation = model.VolumeAutomation{Type: model.CurveSinusoidal, Duration: 12, StartVol: 0.1, EndVol: 0.7, Cycle: true}
	birds.PanAutomation = model.PanAutomation{Enabled: true, Duration: 8, Direction: model.PanBouncing}
	birds.ProbabilisticSpawn = model.ProbabilisticSpawn{Enabled: true, MinInterval: 3, MaxInterval: 9, SpawnProbability: 0.25}

	return &model.Mix{Name: "evening", Tracks: []model.TrackParams{rain, birds}}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	r, _ := newRepo()
	ctx := context.Background()
	mix := sampleMix()
	if err := r.Save(ctx, mix); err != nil {
		t.Fatal(err)
	}

	got, err := r.Load(ctx, "evening")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "evening" || !got.Timestamp.Equal(r.now()) {
		t.Fatalf("header = %q %v", got.Name, got.Timestamp)
	}
	if !reflect.DeepEqual(got.Tracks, mix.Tracks) {
		t.Fatalf("tracks differ:\n got %+v\nwant %+v", got.Tracks, mix.Tracks)
	}
}

func TestSaveValidation(t *testing.T) {
	r, _ := newRepo()
	ctx := context.Background()
	tests := []struct {
		name string
		mix  *model.Mix
		want error
	}{
		{"empty name", &model.Mix{Name: " ", Tracks: sampleMix().Tracks}, ErrInvalidMixName},
		{"reserved name", &model.Mix{Name: "theme", Tracks: sampleMix().Tracks}, ErrInvalidMixName},
		{"no tracks", &model.Mix{Name: "quiet"}, ErrEmptyMix},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Save(ctx, tt.mix); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadOlderSchemaGetsDefaults(t *testing.T) {
	r, store := newRepo()
	ctx := context.Background()
	store.Set(ctx, "old", []byte(`{"name":"old","timestamp":"2023-01-02T03:04:05.000Z",
		"tracks":[{"soundPath":"sounds/fire/campfire.ogg","volume":0.9,"loopMode":"interval"},{"volume":0.1}]}`))

	mix, err := r.Load(ctx, "old")
	if err != nil {
		t.Fatal(err)
	}
	if len(mix.Tracks) != 1 {
		t.Fatalf("tracks = %d, want the one with a soundPath", len(mix.Tracks))
	}
	want := model.DefaultTrackParams("sounds/fire/campfire.ogg")
	want.Volume = 0.9
	want.LoopMode = model.LoopInterval
	if mix.Tracks[0] != want {
		t.Fatalf("track = %+v\nwant %+v", mix.Tracks[0], want)
	}
}

func TestLoadErrors(t *testing.T) {
	r, store := newRepo()
	ctx := context.Background()
	store.Set(ctx, "broken", []byte(`not json`))
	store.Set(ctx, "nameless", []byte(`{"tracks":[]}`))
	store.Set(ctx, "blank", []byte("  "))

	if _, err := r.Load(ctx, "missing"); !errors.Is(err, ErrMixNotFound) {
		t.Fatalf("missing: %v", err)
	}
	if _, err := r.Load(ctx, "blank"); !errors.Is(err, ErrMixNotFound) {
		t.Fatalf("blank: %v", err)
	}
	for _, key := range []string{"broken", "nameless"} {
		_, err := r.Load(ctx, key)
		var pe *PersistenceError
		if !errors.As(err, &pe) || pe.Key != key {
			t.Fatalf("%s: err = %v, want PersistenceError", key, err)
		}
	}
}

func TestListSkipsReservedAndMalformed(t *testing.T) {
	r, store := newRepo()
	ctx := context.Background()
	if err := r.Save(ctx, sampleMix()); err != nil {
		t.Fatal(err)
	}
	store.Set(ctx, "theme", []byte("dark"))
	store.Set(ctx, "ui-settings", []byte(`{"name":"ui","tracks":[]}`))
	store.Set(ctx, "selectedBackground", []byte("forest.jpg"))
	store.Set(ctx, "garbage", []byte("[1,2,3]"))
	store.Set(ctx, "badtracks", []byte(`{"name":"x","tracks":"nope"}`))
	store.Set(ctx, "afternoon", []byte(`{"name":"afternoon","tracks":[{"soundPath":"a.wav"}]}`))

	got, err := r.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, s := range got {
		names = append(names, s.Name)
	}
	if want := []string{"afternoon", "evening"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("listed %v, want %v", names, want)
	}
	if got[1].TrackCount != 2 {
		t.Fatalf("evening track count = %d", got[1].TrackCount)
	}
}

func TestFirstValid(t *testing.T) {
	r, store := newRepo()
	ctx := context.Background()
	if _, err := r.FirstValid(ctx); !errors.Is(err, ErrMixNotFound) {
		t.Fatalf("empty store err = %v", err)
	}
	store.Set(ctx, "aaa", []byte("{oops"))
	store.Set(ctx, "bbb", []byte(`{"name":"bbb","tracks":[{"soundPath":"b.wav"}]}`))
	m, err := r.FirstValid(ctx)
	if err != nil || m.Name != "bbb" {
		t.Fatalf("FirstValid = %+v, %v", m, err)
	}
}

func TestDelete(t *testing.T) {
	r, _ := newRepo()
	ctx := context.Background()
	r.Save(ctx, sampleMix())
	if err := r.Delete(ctx, "evening"); err != nil {
		t.Fatal(err)
	}
	if err := r.Delete(ctx, "evening"); !errors.Is(err, ErrMixNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
	if err := r.Delete(ctx, "theme"); !errors.Is(err, ErrMixNotFound) {
		t.Fatalf("reserved delete err = %v", err)
	}
}

func TestStaticSoundRepository(t *testing.T) {
	repo := NewStaticSoundRepository([]model.Sound{
		{Filename: "a.mp3", Category: "rain"},
		{Filename: "b.mp3", Category: "fire"},
		{Filename: "c.mp3", Category: "rain"},
	})
	ctx := context.Background()
	all, _ := repo.List(ctx)
	if len(all) != 3 {
		t.Fatalf("List = %d", len(all))
	}
	rain, _ := repo.ByCategory(ctx, "rain")
	if len(rain) != 2 || rain[1].Filename != "c.mp3" {
		t.Fatalf("ByCategory = %+v", rain)
	}
	if _, err := repo.Upsert(ctx, all); !errors.Is(err, ErrReadOnlyCatalog) {
		t.Fatalf("Upsert err = %v", err)
	}
}
