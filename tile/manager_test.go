package tile

import (
	"context"
	"testing"
	"time"

	"github.com/kakira9618/spectro/analysis"
	"github.com/kakira9618/spectro/pcm"
	"github.com/kakira9618/spectro/spectrogram"
	"github.com/kakira9618/spectro/view"
)

func makeSilencePCM(t *testing.T, sampleRate int, seconds float64) *pcm.PcmBuffer {
	t.Helper()
	samples := make([]float32, int(float64(sampleRate)*seconds))
	buf, err := pcm.New(sampleRate, [][]float32{samples})
	if err != nil {
		t.Fatal(err)
	}
	return buf
}

func buildFullTrack(t *testing.T, b *analysis.Builder, buf *pcm.PcmBuffer) *spectrogram.Spectrogram {
	t.Helper()
	spec, err := b.Build(context.Background(), buf, analysis.BuildRequest{
		StartSeconds:    0,
		DurationSeconds: buf.DurationSeconds(),
		HopSize:         960,
		FFTSize:         1024,
		Token:           0,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return spec
}

func TestLoadBumpsToken(t *testing.T) {
	buf := makeSilencePCM(t, 48000, 2)
	builder := analysis.NewBuilder(analysis.DefaultConfig())
	full := buildFullTrack(t, builder, buf)

	mgr := NewManager(builder)
	before := mgr.latestToken.load()
	mgr.Load(buf, full)
	after := mgr.latestToken.load()

	if after <= before {
		t.Errorf("latestToken after Load = %d, want > %d", after, before)
	}
}

func TestOnViewChangeSkipsWhenNotWarranted(t *testing.T) {
	buf := makeSilencePCM(t, 48000, 10)
	builder := analysis.NewBuilder(analysis.DefaultConfig())
	full := buildFullTrack(t, builder, buf)

	mgr := NewManager(builder)
	mgr.Load(buf, full)

	// Large samplesPerPixel => low pixel density => hi-res not warranted
	// against a hop of 960/48000 = 0.02s/frame.
	snap := view.Snapshot{ViewStart: 0, ViewDuration: 5, SamplesPerPixel: 48000, SampleRate: 48000, TotalDuration: 10}
	mgr.OnViewChange(snap)

	mgr.mu.Lock()
	pending := mgr.hiResPending
	mgr.mu.Unlock()

	if pending {
		t.Errorf("hiResPending = true, want false when hi-res is not warranted")
	}
}

func TestOnViewChangeDebouncesWithinWindow(t *testing.T) {
	buf := makeSilencePCM(t, 48000, 10)
	builder := analysis.NewBuilder(analysis.DefaultConfig())
	full := buildFullTrack(t, builder, buf)

	mgr := NewManager(builder)
	repainted := make(chan struct{}, 4)
	mgr.SetRepaintCallback(func() { repainted <- struct{}{} })
	mgr.Load(buf, full)

	snap := view.Snapshot{ViewStart: 0, ViewDuration: 2, SamplesPerPixel: 480, SampleRate: 48000, TotalDuration: 10}
	mgr.OnViewChange(snap)
	mgr.OnViewChange(snap) // while the first build is in flight: supersedes it and re-requests after the debounce window; only one tile installs

	select {
	case <-repainted:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the hi-res tile to install")
	}

	select {
	case <-repainted:
		t.Fatal("expected exactly one repaint from two debounced OnViewChange calls")
	case <-time.After(200 * time.Millisecond):
	}
}

// TestRapidViewChangeWhileBuildingInstallsLatestNotStale reproduces
// setView(A) immediately followed by setView(B) while A's build is still in
// flight: the result that ends up installed must correspond to B, never A,
// even though A's build is the one that happens to finish first.
func TestRapidViewChangeWhileBuildingInstallsLatestNotStale(t *testing.T) {
	buf := makeSilencePCM(t, 48000, 10)
	builder := analysis.NewBuilder(analysis.DefaultConfig())
	full := buildFullTrack(t, builder, buf)

	mgr := NewManager(builder)
	repainted := make(chan struct{}, 4)
	mgr.SetRepaintCallback(func() { repainted <- struct{}{} })
	mgr.Load(buf, full)

	viewB := view.Snapshot{ViewStart: 4, ViewDuration: 2, SamplesPerPixel: 480, SampleRate: 48000, TotalDuration: 10}

	// Simulate setView(A) having already dispatched and still being in
	// flight: hiResPending is set and A's token is the latest one issued.
	mgr.mu.Lock()
	tokenA := mgr.latestToken.add()
	mgr.hiResPending = true
	mgr.lastRequestAt = time.Now()
	mgr.mu.Unlock()

	// setView(B) arrives while A is still building.
	mgr.OnViewChange(viewB)

	mgr.mu.Lock()
	if mgr.pending == nil {
		mgr.mu.Unlock()
		t.Fatal("setView(B) while a build is in flight must be recorded as pending, not dropped")
	}
	if mgr.latestToken.load() == tokenA {
		mgr.mu.Unlock()
		t.Fatal("setView(B) while a build is in flight must bump the token so A's result is recognized as stale")
	}
	mgr.mu.Unlock()

	// A's build now finishes (out of band, as if it had been running all
	// along). Its token no longer matches latestToken, so dispatch must
	// discard it and replay the pending B request instead of installing A.
	mgr.dispatch(buf, 0, 2, 480, full.FFTSize, tokenA)

	select {
	case <-repainted:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for B's hi-res tile to install")
	}

	mgr.mu.Lock()
	installed := mgr.hiRes
	pendingAfter := mgr.pending
	mgr.mu.Unlock()

	if installed == nil {
		t.Fatal("expected a hi-res tile to be installed after B replays")
	}
	if installed.Token == tokenA {
		t.Errorf("installed tile has A's token %d, want a token issued for B, not A", tokenA)
	}
	if pendingAfter != nil {
		t.Error("pending request should be cleared once replayed")
	}
}

func TestStaleDispatchIsDiscardedSilently(t *testing.T) {
	buf := makeSilencePCM(t, 48000, 4)
	builder := analysis.NewBuilder(analysis.DefaultConfig())
	full := buildFullTrack(t, builder, buf)

	mgr := NewManager(builder)
	called := false
	mgr.SetRepaintCallback(func() { called = true })
	mgr.Load(buf, full)

	staleToken := mgr.latestToken.load()
	mgr.latestToken.add() // a newer request supersedes staleToken

	mgr.dispatch(buf, 0, 1, 480, 1024, staleToken)

	if called {
		t.Error("repaint callback invoked for a stale token, want discarded silently")
	}
	if mgr.Active() != full {
		t.Error("Active() changed despite the stale dispatch being discarded")
	}
}
