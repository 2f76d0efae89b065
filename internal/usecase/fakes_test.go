package usecase

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"loopy/internal/domain"
	"loopy/internal/ports"
)

func wavFile(name string) domain.AudioFile {
	buf := make([]byte, 44)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], 36)
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	copy(buf[36:40], "data")
	return domain.AudioFile{Name: name, MIMEType: "audio/wav", Data: buf}
}

type fakeEngine struct {
	mu sync.Mutex

	handler       ports.EngineEventHandler
	readyDuration float64
	emitReady     bool

	loaded   []string
	current  string
	regions  []domain.Region
	nextID   int
	enabled  int
	plays    []float64
	pauses   int
	toggles  int
	seeks    []float64
	removals []string
}

func newFakeEngine(readyDuration float64) *fakeEngine {
	return &fakeEngine{readyDuration: readyDuration, emitReady: true}
}

func (f *fakeEngine) Load(url string) error {
	f.mu.Lock()
	f.loaded = append(f.loaded, url)
	f.current = url
	f.regions = nil
	handler, emit, duration := f.handler, f.emitReady, f.readyDuration
	f.mu.Unlock()

	if handler != nil && emit {
		handler.HandleEngineEvent(domain.EngineEvent{Kind: domain.EngineEventReady, Track: url, Duration: duration})
	}
	return nil
}

func (f *fakeEngine) PlayPause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles++
	return nil
}

func (f *fakeEngine) Play(from float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays = append(f.plays, from)
	return nil
}

func (f *fakeEngine) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
	return nil
}

func (f *fakeEngine) Seek(seconds float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, seconds)
	return nil
}

func (f *fakeEngine) EnableRegions() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled++
	return nil
}

func (f *fakeEngine) AddRegion(start, end float64) (domain.Region, error) {
	f.mu.Lock()
	f.nextID++
	region := domain.Region{ID: fmt.Sprintf("r%d", f.nextID), Start: start, End: end}
	f.regions = append(f.regions, region)
	handler, track := f.handler, f.current
	f.mu.Unlock()

	if handler != nil {
		handler.HandleEngineEvent(domain.EngineEvent{Kind: domain.EngineEventRegionCreated, Track: track, Region: region})
	}
	return region, nil
}

func (f *fakeEngine) Regions() []domain.Region {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Region, len(f.regions))
	copy(out, f.regions)
	return out
}

func (f *fakeEngine) RemoveRegion(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removals = append(f.removals, id)
	kept := f.regions[:0]
	for _, region := range f.regions {
		if region.ID != id {
			kept = append(kept, region)
		}
	}
	f.regions = kept
	return nil
}

// inject registers a region as if the user drew it, without emitting.
func (f *fakeEngine) inject(region domain.Region) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regions = append(f.regions, region)
}

func (f *fakeEngine) track() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeEngine) snapshotPlays() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]float64, len(f.plays))
	copy(out, f.plays)
	return out
}

func (f *fakeEngine) snapshotLoaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.loaded))
	copy(out, f.loaded)
	return out
}

type fakeBackend struct {
	mu sync.Mutex

	processTrack domain.ProcessedTrack
	processErr   error
	loopPayload  domain.AudioPayload
	loopErr      error
	fetchPayload domain.AudioPayload
	fetchErr     error

	// release, when set, blocks Process and Loop until closed.
	release chan struct{}

	processCalls int
	loopRequests []domain.LoopRequest
	fetched      []string
}

func (f *fakeBackend) Process(ctx context.Context, _ domain.AudioFile) (domain.ProcessedTrack, error) {
	f.wait(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processCalls++
	return f.processTrack, f.processErr
}

func (f *fakeBackend) Loop(ctx context.Context, req domain.LoopRequest) (domain.AudioPayload, error) {
	f.wait(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loopRequests = append(f.loopRequests, req)
	return f.loopPayload, f.loopErr
}

func (f *fakeBackend) Fetch(_ context.Context, url string) (domain.AudioPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	return f.fetchPayload, f.fetchErr
}

func (f *fakeBackend) wait(ctx context.Context) {
	f.mu.Lock()
	release := f.release
	f.mu.Unlock()
	if release == nil {
		return
	}
	select {
	case <-release:
	case <-ctx.Done():
	}
}

type fakeBlobs struct {
	mu       sync.Mutex
	next     int
	live     map[string]domain.AudioPayload
	released []string
	err      error

	// hold, when set, blocks Publish until closed. entered is signalled once
	// a Publish call is waiting on hold.
	hold    chan struct{}
	entered chan struct{}
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{live: map[string]domain.AudioPayload{}}
}

func (f *fakeBlobs) Publish(payload domain.AudioPayload) (string, error) {
	f.mu.Lock()
	hold, entered := f.hold, f.entered
	f.mu.Unlock()
	if hold != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-hold
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if len(payload.Data) == 0 {
		return "", errors.New("empty payload")
	}
	f.next++
	url := fmt.Sprintf("/blob/%d", f.next)
	f.live[url] = payload
	return url, nil
}

func (f *fakeBlobs) Open(url string) (domain.AudioPayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, ok := f.live[url]
	return payload, ok
}

func (f *fakeBlobs) Release(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.live[url]; ok {
		delete(f.live, url)
		f.released = append(f.released, url)
	}
}

func (f *fakeBlobs) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

type fakeEventSink struct {
	mu sync.Mutex

	states    []stateEvent
	regions   []domain.RegionInfo
	playbacks []domain.PlaybackState
	progress  []string
	errors    []errEvent
}

type stateEvent struct {
	snapshot domain.Snapshot
	reason   domain.StageReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) SessionChanged(snapshot domain.Snapshot, reason domain.StageReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{snapshot: snapshot, reason: reason})
}

func (f *fakeEventSink) RegionChanged(region domain.RegionInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regions = append(f.regions, region)
}

func (f *fakeEventSink) PlaybackChanged(state domain.PlaybackState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playbacks = append(f.playbacks, state)
}

func (f *fakeEventSink) ProgressMessage(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, text)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]stateEvent, len(f.states))
	copy(out, f.states)
	return out
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

func (f *fakeEventSink) progressCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.progress)
}
