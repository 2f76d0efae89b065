package usecase

import (
	"testing"

	"go.uber.org/zap"

	"loopy/internal/domain"
)

type stubPlaybackOwner struct {
	state   domain.PlaybackState
	updates int
}

func (s *stubPlaybackOwner) updatePlayback(apply func(state *domain.PlaybackState)) {
	apply(&s.state)
	s.updates++
}

func TestPlaybackControllerToggle(t *testing.T) {
	t.Parallel()

	region := &domain.Region{ID: "r1", Start: 4, End: 9}
	tests := []struct {
		name        string
		region      *domain.Region
		isPlaying   bool
		scope       bool
		wantPlays   []float64
		wantPauses  int
		wantToggles int
	}{
		{name: "region stopped plays from start", region: region, scope: true, wantPlays: []float64{4}},
		{name: "region playing pauses", region: region, isPlaying: true, scope: true, wantPauses: 1},
		{name: "no region toggles whole track", scope: true, wantToggles: 1},
		{name: "outside scope toggles whole track", region: region, wantToggles: 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			engine := newFakeEngine(0)
			controller := newPlaybackController(engine, &stubPlaybackOwner{}, zap.NewNop())
			if err := controller.TogglePlayPause(tt.region, tt.isPlaying, tt.scope); err != nil {
				t.Fatalf("toggle failed: %v", err)
			}

			plays := engine.snapshotPlays()
			if len(plays) != len(tt.wantPlays) {
				t.Fatalf("expected plays %v, got %v", tt.wantPlays, plays)
			}
			for i := range plays {
				if plays[i] != tt.wantPlays[i] {
					t.Fatalf("expected plays %v, got %v", tt.wantPlays, plays)
				}
			}
			if engine.pauses != tt.wantPauses || engine.toggles != tt.wantToggles {
				t.Fatalf("unexpected commands: pauses=%d toggles=%d", engine.pauses, engine.toggles)
			}
		})
	}
}

func TestPlaybackControllerTransport(t *testing.T) {
	t.Parallel()

	owner := &stubPlaybackOwner{}
	controller := newPlaybackController(newFakeEngine(0), owner, zap.NewNop())

	controller.HandleTransport(domain.EngineEvent{Kind: domain.EngineEventPlay})
	if !owner.state.IsPlaying {
		t.Fatalf("expected playing")
	}
	controller.HandleTransport(domain.EngineEvent{Kind: domain.EngineEventAudioProcess, Time: 3.25})
	if owner.state.CurrentTime != 3.25 {
		t.Fatalf("expected current time 3.25, got %v", owner.state.CurrentTime)
	}
	controller.HandleTransport(domain.EngineEvent{Kind: domain.EngineEventSeeking, Time: -1})
	if owner.state.CurrentTime != 0 {
		t.Fatalf("expected negative seek to clamp, got %v", owner.state.CurrentTime)
	}
	controller.HandleTransport(domain.EngineEvent{Kind: domain.EngineEventPause})
	if owner.state.IsPlaying {
		t.Fatalf("expected paused")
	}
	controller.HandleTransport(domain.EngineEvent{Kind: domain.EngineEventRegionOut})
	if owner.updates != 4 {
		t.Fatalf("expected non-transport events to be ignored, got %d updates", owner.updates)
	}
}

func TestPlaybackControllerSeekClamps(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine(0)
	controller := newPlaybackController(engine, &stubPlaybackOwner{}, zap.NewNop())

	for _, target := range []float64{-3, 42, 500} {
		if err := controller.Seek(target, 120); err != nil {
			t.Fatalf("seek failed: %v", err)
		}
	}
	want := []float64{0, 42, 120}
	for i, got := range engine.seeks {
		if got != want[i] {
			t.Fatalf("expected seeks %v, got %v", want, engine.seeks)
		}
	}
}
