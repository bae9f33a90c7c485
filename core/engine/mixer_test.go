package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"Soundscape/core/audio"
	"Soundscape/model"
)

func TestAddTrackRejectsDuplicatePath(t *testing.T) {
	h := newHarness(nil)
	for _, path := range []string{"sounds/rain/a.mp3", "sounds/fire/b.ogg"} {
		if h.mixer.AddTrack(path) == nil {
			t.Fatalf("first add of %s rejected", path)
		}
		if h.mixer.AddTrack(path) != nil {
			t.Fatalf("second add of %s accepted", path)
		}
	}
	if n := len(h.mixer.Tracks()); n != 2 {
		t.Fatalf("tracks = %d, want 2", n)
	}
}

func TestAddTrackDefaults(t *testing.T) {
	h := newHarness(nil)
	tr := h.mixer.AddTrack("a.wav")
	if got, want := tr.Params(), model.DefaultTrackParams("a.wav"); got != want {
		t.Fatalf("params = %+v, want %+v", got, want)
	}
}

func TestRemoveTrackSuppressesPendingRetrigger(t *testing.T) {
	h := newHarness(nil, "a.wav")
	tr := h.mixer.AddTrackWithParams(params("a.wav", func(p *model.TrackParams) {
		p.LoopMode = model.LoopInterval
		p.IntervalSec = 30
		p.ProbabilisticSpawn = model.ProbabilisticSpawn{Enabled: true, MinInterval: 5, MaxInterval: 5, SpawnProbability: 1}
	}))
	startNow(t, h, tr)
	h.out.last().End()

	if err := h.mixer.RemoveTrack("a.wav"); err != nil {
		t.Fatal(err)
	}
	if !tr.IsRemoved() {
		t.Fatal("track not marked removed")
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("pending = %d after removal", h.clock.Pending())
	}

	h.clock.Advance(time.Hour)
	if h.events.count(EventStarted) != 1 || h.out.sounding() != 0 {
		t.Fatal("removed track was started again")
	}
	if _, ok := h.mixer.Track("a.wav"); ok {
		t.Fatal("track still registered")
	}
	// explicit start is a no-op too
	if err := <-h.eng.Start(tr); err != nil || tr.IsPlaying() {
		t.Fatal("removed track accepted a start")
	}
}

// a timer captured before removal must not act even if it fires
func TestStaleTimerAfterRemovalIsNoop(t *testing.T) {
	h := newHarness(nil, "a.wav")
	tr := h.mixer.AddTrackWithParams(params("a.wav", func(p *model.TrackParams) {
		p.LoopMode = model.LoopInterval
		p.IntervalSec = 30
	}))
	startNow(t, h, tr)
	h.out.last().End()

	tr.mu.Lock()
	stale := tr.retrigger.(*fakeTimer)
	tr.mu.Unlock()
	h.mixer.RemoveTrack("a.wav")

	stale.f()
	if tr.IsPlaying() || h.out.sounding() != 0 {
		t.Fatal("stale retrigger started a removed track")
	}
}

func TestRemoveUnknownTrack(t *testing.T) {
	h := newHarness(nil)
	if err := h.mixer.RemoveTrack("nope"); !errors.Is(err, ErrTrackNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestPlayAllIsolatesFailures(t *testing.T) {
	h := newHarness(nil, "good.wav", "also-good.wav")
	h.mixer.AddTrack("good.wav")
	h.mixer.AddTrack("broken.wav")
	h.mixer.AddTrack("also-good.wav")

	failed := h.mixer.PlayAll(context.Background())
	if len(failed) != 1 {
		t.Fatalf("failed = %v, want only broken.wav", failed)
	}
	if !errors.Is(failed["broken.wav"], errNoLoader) {
		t.Fatalf("broken.wav err = %v", failed["broken.wav"])
	}
	if !h.mixer.IsPlaying() {
		t.Fatal("aggregate state should be playing")
	}
	for _, path := range []string{"good.wav", "also-good.wav"} {
		tr, _ := h.mixer.Track(path)
		if !tr.IsPlaying() {
			t.Errorf("%s not playing", path)
		}
	}
}

func TestLateJoinerStartsWhilePlaying(t *testing.T) {
	h := newHarness(nil, "a.wav", "b.wav")
	h.mixer.AddTrack("a.wav")
	h.mixer.PlayAll(context.Background())

	tr := h.mixer.AddTrack("b.wav")
	if !tr.IsPlaying() {
		t.Fatal("track added to a playing mix should start")
	}

	h.mixer.StopAll()
	tr2 := h.mixer.AddTrack("c.wav")
	if tr2.IsPlaying() || tr2.IsLoading() {
		t.Fatal("track added to a stopped mix should stay idle")
	}
}

func TestStopAllHonoursFadeOut(t *testing.T) {
	h := newHarness(nil, "a.wav")
	p := model.DefaultTrackParams("a.wav")
	p.FadeInEnabled = false
	tr := h.mixer.AddTrackWithParams(p)
	h.mixer.PlayAll(context.Background())
	v := h.out.last()

	h.mixer.StopAll()
	if tr.IsPlaying() || h.mixer.IsPlaying() {
		t.Fatal("still playing")
	}
	if !v.isSounding() {
		t.Fatal("fade-out should keep the voice until the ramp ends")
	}
	h.clock.Advance(time.Second)
	if v.isSounding() {
		t.Fatal("voice not released after fade-out")
	}
}

func TestClearTracksRemovesEverything(t *testing.T) {
	h := newHarness(nil, "a.wav", "b.wav")
	a := h.mixer.AddTrackWithParams(params("a.wav", func(p *model.TrackParams) {
		p.FadeOutEnabled = true
		p.AutomationEnabled = true
		p.VolumeAutomation.Cycle = true
		p.ProbabilisticSpawn.Enabled = true
	}))
	b := h.mixer.AddTrack("b.wav")
	h.mixer.PlayAll(context.Background())

	h.mixer.ClearTracks()
	if len(h.mixer.Tracks()) != 0 || h.mixer.IsPlaying() {
		t.Fatal("registry not emptied")
	}
	if !a.IsRemoved() || !b.IsRemoved() {
		t.Fatal("tracks not marked removed")
	}
	if h.out.sounding() != 0 || h.clock.Pending() != 0 {
		t.Fatalf("sounding=%d pending=%d after clear", h.out.sounding(), h.clock.Pending())
	}
}

func TestSnapshotRestore(t *testing.T) {
	h := newHarness(nil)
	h.mixer.AddTrack("a.wav")
	h.mixer.AddTrackWithParams(params("b.wav", func(p *model.TrackParams) {
		p.Volume = 0.25
		p.LoopMode = model.LoopRandomInterval
	}))

	mix := h.mixer.Snapshot("evening")
	if mix.Name != "evening" || len(mix.Tracks) != 2 || mix.Tracks[1].Volume != 0.25 {
		t.Fatalf("snapshot = %+v", mix)
	}

	h.mixer.AddTrack("c.wav")
	if n := h.mixer.Restore(mix.Tracks); n != 2 {
		t.Fatalf("restored %d, want 2", n)
	}
	tracks := h.mixer.Tracks()
	if len(tracks) != 2 || tracks[0].Path() != "a.wav" || tracks[1].Params().LoopMode != model.LoopRandomInterval {
		t.Fatal("restore did not reproduce the snapshot")
	}
}

func TestMixerSettersUnknownTrack(t *testing.T) {
	h := newHarness(nil)
	if err := h.mixer.SetVolume("x", 1); !errors.Is(err, ErrTrackNotFound) {
		t.Fatalf("err = %v", err)
	}
	if err := h.mixer.SetSpawn("x", model.DefaultProbabilisticSpawn()); !errors.Is(err, ErrTrackNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestBufferCacheCoalescesConcurrentLoads(t *testing.T) {
	calls := make(chan string, 10)
	release := make(chan struct{})
	cache := NewBufferCache(LoaderFunc(func(ctx context.Context, path string) (*audio.Buffer, error) {
		calls <- path
		<-release
		return testBuffer(), nil
	}))

	const n = 5
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := cache.Load(context.Background(), "rain.wav")
			results <- err
		}()
	}
	<-calls
	time.Sleep(20 * time.Millisecond)
	close(release)
	for i := 0; i < n; i++ {
		if err := <-results; err != nil {
			t.Fatal(err)
		}
	}
	if len(calls) != 0 {
		t.Fatalf("loader ran %d extra times", len(calls))
	}
	if _, ok := cache.Get("rain.wav"); !ok {
		t.Fatal("buffer not cached")
	}
}

func TestBufferCacheDoesNotCacheFailures(t *testing.T) {
	attempts := 0
	cache := NewBufferCache(LoaderFunc(func(ctx context.Context, path string) (*audio.Buffer, error) {
		attempts++
		if attempts == 1 {
			return nil, &audio.DecodeError{Path: path, Err: audio.ErrUnsupportedFormat}
		}
		return testBuffer(), nil
	}))

	_, err := cache.Load(context.Background(), "x.wav")
	var de *audio.DecodeError
	if !errors.As(err, &de) || de.Path != "x.wav" {
		t.Fatalf("err = %v, want *audio.DecodeError", err)
	}
	if cache.Len() != 0 {
		t.Fatal("failure was cached")
	}
	if _, err := cache.Load(context.Background(), "x.wav"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}

	cache.Invalidate("x.wav")
	if _, ok := cache.Get("x.wav"); ok {
		t.Fatal("Invalidate kept the entry")
	}
}

func TestBufferCacheInvalidateDuringLoad(t *testing.T) {
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	var loads int32
	cache := NewBufferCache(LoaderFunc(func(ctx context.Context, path string) (*audio.Buffer, error) {
		if atomic.AddInt32(&loads, 1) == 1 {
			entered <- struct{}{}
			<-release
		}
		return testBuffer(), nil
	}))

	done := make(chan error, 1)
	go func() {
		_, err := cache.Load(context.Background(), "rain.wav")
		done <- err
	}()
	<-entered
	cache.Invalidate("rain.wav")
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if _, ok := cache.Get("rain.wav"); ok {
		t.Fatal("buffer read before the change was cached")
	}

	if _, err := cache.Load(context.Background(), "rain.wav"); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&loads); n != 2 {
		t.Fatalf("loads = %d, want 2", n)
	}
	if _, ok := cache.Get("rain.wav"); !ok {
		t.Fatal("fresh load not cached")
	}
}
