package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"Soundscape/core/audio"
	"Soundscape/model"
)

func startNow(t *testing.T, h *harness, tr *Track) {
	t.Helper()
	select {
	case err := <-h.eng.Start(tr):
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start did not settle")
	}
}

func TestStartCachedPlaysSynchronously(t *testing.T) {
	h := newHarness(nil, "a.wav")
	tr := h.mixer.AddTrackWithParams(params("a.wav", nil))
	startNow(t, h, tr)

	if !tr.IsPlaying() || tr.IsLoading() {
		t.Fatalf("playing=%v loading=%v", tr.IsPlaying(), tr.IsLoading())
	}
	v := h.out.last()
	if !v.loop {
		t.Error("loop mode track should get a looping source")
	}
	if got := v.Gain().ValueAt(0); got != 0.5 {
		t.Errorf("gain = %v, want 0.5", got)
	}

	// second start is a no-op
	startNow(t, h, tr)
	if len(h.out.voices) != 1 {
		t.Fatalf("voices = %d, want 1", len(h.out.voices))
	}
}

func TestStartFadeIn(t *testing.T) {
	h := newHarness(nil, "a.wav")
	tr := h.mixer.AddTrackWithParams(params("a.wav", func(p *model.TrackParams) {
		p.FadeInEnabled = true
		p.FadeInDuration = 2
		p.Volume = 0.8
	}))
	startNow(t, h, tr)

	g := h.out.last().Gain()
	for _, c := range []struct{ at, want float64 }{{0, 0}, {1, 0.4}, {2, 0.8}, {5, 0.8}} {
		if got := g.ValueAt(c.at); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("gain(%v) = %v, want %v", c.at, got, c.want)
		}
	}
}

// natural end of an interval track arms exactly one timer, which starts
// the track exactly once when it fires
func TestIntervalNaturalEndRetriggersOnce(t *testing.T) {
	h := newHarness(nil, "a.wav")
	tr := h.mixer.AddTrackWithParams(params("a.wav", func(p *model.TrackParams) {
		p.LoopMode = model.LoopInterval
		p.IntervalSec = 30
	}))
	startNow(t, h, tr)
	if h.out.last().loop {
		t.Fatal("interval track must not loop its source")
	}

	h.out.last().End()
	if tr.IsPlaying() {
		t.Fatal("track still playing after natural end")
	}
	if n := h.clock.Pending(); n != 1 {
		t.Fatalf("pending timers = %d, want 1", n)
	}
	if n := h.events.count(EventRetriggerArmed); n != 1 {
		t.Fatalf("retrigger events = %d, want 1", n)
	}

	h.clock.Advance(29900 * time.Millisecond)
	if n := h.events.count(EventStarted); n != 1 {
		t.Fatalf("started before the interval elapsed (%d)", n)
	}
	h.clock.Advance(100 * time.Millisecond)
	if n := h.events.count(EventStarted); n != 2 {
		t.Fatalf("starts = %d, want 2", n)
	}
	h.clock.Advance(5 * time.Minute)
	if n := h.events.count(EventStarted); n != 2 {
		t.Fatalf("starts = %d after idle time, want 2", n)
	}
	if !tr.IsPlaying() || h.out.sounding() != 1 {
		t.Fatal("retriggered track is not sounding")
	}
}

func TestRandomIntervalSwapsInvertedBounds(t *testing.T) {
	h := newHarness(func() float64 { return 0.5 }, "a.wav")
	tr := h.mixer.AddTrackWithParams(params("a.wav", func(p *model.TrackParams) {
		p.LoopMode = model.LoopRandomInterval
		p.MinIntervalSec = 40
		p.MaxIntervalSec = 20
	}))
	startNow(t, h, tr)
	h.out.last().End()

	h.clock.Advance(29 * time.Second)
	if h.events.count(EventStarted) != 1 {
		t.Fatal("retriggered too early")
	}
	h.clock.Advance(time.Second)
	if h.events.count(EventStarted) != 2 {
		t.Fatal("expected a replay at 20+0.5*20 = 30s")
	}
}

func TestPlayOnceNaturalEndStops(t *testing.T) {
	h := newHarness(nil, "a.wav")
	tr := h.mixer.AddTrackWithParams(params("a.wav", func(p *model.TrackParams) {
		p.LoopMode = model.LoopPlayOnce
		p.ProbabilisticSpawn = model.ProbabilisticSpawn{Enabled: true, MinInterval: 10, MaxInterval: 10, SpawnProbability: 1}
	}))
	startNow(t, h, tr)
	h.out.last().End()

	if tr.IsPlaying() {
		t.Fatal("play-once track still playing")
	}
	if n := h.clock.Pending(); n != 0 {
		t.Fatalf("pending timers = %d, want 0", n)
	}
	h.clock.Advance(time.Minute)
	if h.events.count(EventStarted) != 1 {
		t.Fatal("play-once track restarted")
	}
}

func TestStopWithFadeOut(t *testing.T) {
	h := newHarness(nil, "a.wav")
	tr := h.mixer.AddTrackWithParams(params("a.wav", func(p *model.TrackParams) {
		p.FadeOutEnabled = true
		p.FadeOutDuration = 2
		p.Volume = 0.6
	}))
	startNow(t, h, tr)
	v := h.out.last()

	h.clock.Advance(time.Second)
	h.eng.Stop(tr, false)
	if tr.IsPlaying() {
		t.Fatal("isPlaying should clear at once")
	}
	if !v.isSounding() {
		t.Fatal("voice halted before the fade finished")
	}
	if got := v.Gain().ValueAt(2); math.Abs(got-0.3) > 1e-9 {
		t.Fatalf("gain mid-fade = %v, want 0.3", got)
	}
	if st := h.eng.Status(tr); !st.FadingOut {
		t.Fatal("status should report fading out")
	}

	h.clock.Advance(2 * time.Second)
	if v.isSounding() {
		t.Fatal("voice still sounding after the fade")
	}
	if h.eng.Status(tr).FadingOut {
		t.Fatal("fade handle not cleared")
	}
}

func TestStopImmediate(t *testing.T) {
	h := newHarness(nil, "a.wav")
	tr := h.mixer.AddTrackWithParams(params("a.wav", func(p *model.TrackParams) {
		p.FadeOutEnabled = true
		p.FadeOutDuration = 5
	}))
	startNow(t, h, tr)
	h.eng.Stop(tr, true)
	if h.out.sounding() != 0 || h.clock.Pending() != 0 {
		t.Fatalf("sounding=%d pending=%d", h.out.sounding(), h.clock.Pending())
	}
}

func TestStartDuringFadeHaltsFadingVoice(t *testing.T) {
	h := newHarness(nil, "a.wav")
	tr := h.mixer.AddTrackWithParams(params("a.wav", func(p *model.TrackParams) {
		p.FadeOutEnabled = true
		p.FadeOutDuration = 3
	}))
	startNow(t, h, tr)
	first := h.out.last()
	h.eng.Stop(tr, false)
	startNow(t, h, tr)
	second := h.out.last()

	if first == second || first.isSounding() {
		t.Fatal("fading voice should be halted by the restart")
	}
	// the old fade timer must not stop the new voice
	h.clock.Advance(10 * time.Second)
	if !second.isSounding() {
		t.Fatal("new voice was stopped by a stale fade timer")
	}
}

func TestStopCancelsEveryTimer(t *testing.T) {
	h := newHarness(nil, "a.wav")
	tr := h.mixer.AddTrackWithParams(params("a.wav", func(p *model.TrackParams) {
		p.LoopMode = model.LoopInterval
		p.AutomationEnabled = true
		p.VolumeAutomation.Cycle = true
		p.PanAutomation = model.PanAutomation{Enabled: true, Duration: 10, Direction: model.PanLeftRight, Cycle: true}
		p.ProbabilisticSpawn = model.ProbabilisticSpawn{Enabled: true, MinInterval: 10, MaxInterval: 20, SpawnProbability: 0.5}
	}))
	startNow(t, h, tr)
	if n := h.clock.Pending(); n != 3 {
		t.Fatalf("pending = %d, want volume cycle + pan cycle + spawn", n)
	}
	h.out.last().End()
	if n := h.clock.Pending(); n != 2 {
		t.Fatalf("pending after end = %d, want retrigger + spawn", n)
	}
	h.eng.Stop(tr, true)
	if n := h.clock.Pending(); n != 0 {
		t.Fatalf("pending after stop = %d, want 0", n)
	}
	h.clock.Advance(time.Hour)
	if h.events.count(EventStarted) != 1 {
		t.Fatal("stopped track restarted")
	}
}

func TestSetupErrorLeavesTrackIdle(t *testing.T) {
	h := newHarness(nil, "a.wav")
	h.out.failNew = errors.New("device gone")
	tr := h.mixer.AddTrackWithParams(params("a.wav", nil))

	err := <-h.eng.Start(tr)
	var se *PlaybackSetupError
	if !errors.As(err, &se) || se.Path != "a.wav" {
		t.Fatalf("err = %v, want *PlaybackSetupError for a.wav", err)
	}
	if tr.IsPlaying() || tr.IsLoading() {
		t.Fatal("track should be idle")
	}
	if h.events.count(EventSetupFailed) != 1 {
		t.Fatal("setup failure not reported to subscribers")
	}

	h.out.failNew = nil
	startNow(t, h, tr)
	if !tr.IsPlaying() {
		t.Fatal("manual retry should play")
	}
}

func TestLoadFailureSurfacesAndRetries(t *testing.T) {
	h := newHarness(nil)
	tr := h.mixer.AddTrackWithParams(params("missing.wav", nil))

	select {
	case err := <-h.eng.Start(tr):
		if !errors.Is(err, errNoLoader) {
			t.Fatalf("err = %v, want loader error", err)
		}
	case <-time.After(time.Second):
		t.Fatal("load did not settle")
	}
	if tr.IsLoading() || tr.IsPlaying() {
		t.Fatal("track should be idle after a failed load")
	}

	h.cache.Put("missing.wav", testBuffer())
	startNow(t, h, tr)
	if !tr.IsPlaying() {
		t.Fatal("retry after failure should play")
	}
}

func TestStopDuringLoadCancelsStart(t *testing.T) {
	h := newHarness(nil)
	release := make(chan struct{})
	h.cache.loader = LoaderFunc(func(ctx context.Context, path string) (*audio.Buffer, error) {
		<-release
		return testBuffer(), nil
	})
	tr := h.mixer.AddTrackWithParams(params("slow.wav", nil))

	res := h.eng.Start(tr)
	if !tr.IsLoading() {
		t.Fatal("track should be loading")
	}
	h.eng.Stop(tr, true)
	close(release)

	if err := <-res; !errors.Is(err, ErrStartCancelled) {
		t.Fatalf("err = %v, want ErrStartCancelled", err)
	}
	if tr.IsPlaying() || h.out.sounding() != 0 {
		t.Fatal("stopped track was resurrected by its load")
	}
}

func TestSetVolumeAndPanLive(t *testing.T) {
	h := newHarness(nil, "a.wav")
	tr := h.mixer.AddTrackWithParams(params("a.wav", nil))
	startNow(t, h, tr)

	h.eng.SetVolume(tr, 0.9)
	h.eng.SetPan(tr, -0.4)
	v := h.out.last()
	if v.Gain().ValueAt(0) != 0.9 || v.Pan().ValueAt(0) != -0.4 {
		t.Fatalf("gain=%v pan=%v", v.Gain().ValueAt(0), v.Pan().ValueAt(0))
	}
	if p := tr.Params(); p.Volume != 0.9 || p.Pan != -0.4 {
		t.Fatalf("params not updated: %+v", p)
	}
}

func TestSetLoopCancelsRetrigger(t *testing.T) {
	h := newHarness(nil, "a.wav")
	tr := h.mixer.AddTrackWithParams(params("a.wav", func(p *model.TrackParams) {
		p.LoopMode = model.LoopInterval
	}))
	startNow(t, h, tr)
	h.out.last().End()
	if h.clock.Pending() != 1 {
		t.Fatal("expected a retrigger")
	}
	h.eng.SetLoop(tr, LoopConfig{Mode: model.LoopPlayOnce, IntervalSec: 30})
	if h.clock.Pending() != 0 {
		t.Fatal("retrigger should be cancelled when the mode no longer replays")
	}
}
