package usecase

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"loopy/internal/domain"
	"loopy/internal/ports"
)

const regionPrecision = 1000

// regionOwner is the narrow mutation API the session exposes to the region manager.
type regionOwner interface {
	regionScopeActive() bool
	activeRegion() (domain.Region, bool)
	trackDuration() float64
	setActiveRegion(region domain.Region) bool
}

// regionSlot is a single-slot arena over the engine's region set: after
// normalization the engine holds at most the region named here.
type regionSlot struct {
	id   string
	loop bool
}

// RegionManager keeps exactly one engine region and mirrors it into the session.
type RegionManager struct {
	engine        ports.WaveformEngine
	owner         regionOwner
	logger        *zap.Logger
	defaultLength float64

	mu   sync.Mutex
	slot regionSlot
}

func newRegionManager(engine ports.WaveformEngine, owner regionOwner, defaultLength float64, logger *zap.Logger) *RegionManager {
	if defaultLength <= 0 {
		defaultLength = 15
	}
	return &RegionManager{
		engine:        engine,
		owner:         owner,
		logger:        logger.Named("regions"),
		defaultLength: defaultLength,
	}
}

// OnRegionCreated removes every sibling region and adopts raw as the loop region.
func (m *RegionManager) OnRegionCreated(raw domain.Region) {
	if !m.owner.regionScopeActive() {
		m.logger.Debug("region-created ignored outside region scope", zap.String("id", raw.ID))
		return
	}

	regions := m.engine.Regions()
	if !containsRegion(regions, raw.ID) {
		m.logger.Debug("region-created ignored: region no longer on the engine", zap.String("id", raw.ID))
		return
	}

	for _, existing := range regions {
		if existing.ID == raw.ID {
			continue
		}
		if err := m.engine.RemoveRegion(existing.ID); err != nil {
			m.logger.Warn("failed to remove sibling region", zap.String("id", existing.ID), zap.Error(err))
		}
	}

	region, ok := m.normalize(raw)
	if !ok {
		m.logger.Debug("region-created ignored: empty span", zap.String("id", raw.ID))
		return
	}

	m.mu.Lock()
	m.slot = regionSlot{id: raw.ID, loop: true}
	m.mu.Unlock()

	m.owner.setActiveRegion(region)
}

// OnRegionUpdated re-normalizes the slot region after a drag or resize.
func (m *RegionManager) OnRegionUpdated(raw domain.Region) {
	if !m.owner.regionScopeActive() || !m.holds(raw.ID) {
		return
	}
	region, ok := m.normalize(raw)
	if !ok {
		return
	}
	m.owner.setActiveRegion(region)
}

// OnRegionOut restarts playback at the region start when the slot region is
// loop-eligible. Events for regions that are no longer in the slot are no-ops.
func (m *RegionManager) OnRegionOut(raw domain.Region) {
	if !m.owner.regionScopeActive() {
		return
	}

	m.mu.Lock()
	eligible := m.slot.id != "" && m.slot.id == raw.ID && m.slot.loop
	m.mu.Unlock()
	if !eligible {
		return
	}

	current, ok := m.owner.activeRegion()
	if !ok {
		return
	}
	if err := m.engine.Play(current.Start); err != nil {
		m.logger.Warn("failed to restart region playback", zap.Error(err))
	}
}

// SeedDefaultRegion creates {0, min(defaultLength, durationHint)}; a
// non-positive hint means the duration is unknown.
func (m *RegionManager) SeedDefaultRegion(durationHint float64) {
	end := m.defaultLength
	if durationHint > 0 && durationHint < end {
		end = durationHint
	}
	m.create(0, end)
}

// RestoreRegion re-creates a preserved region on a freshly loaded track.
func (m *RegionManager) RestoreRegion(region domain.Region) {
	m.create(region.Start, region.End)
}

// reset forgets the slot; the engine drops its regions when a track is loaded.
func (m *RegionManager) reset() {
	m.mu.Lock()
	m.slot = regionSlot{}
	m.mu.Unlock()
}

func (m *RegionManager) create(start, end float64) {
	if err := m.engine.EnableRegions(); err != nil {
		m.logger.Warn("failed to enable regions", zap.Error(err))
		return
	}
	created, err := m.engine.AddRegion(start, end)
	if err != nil {
		m.logger.Warn("failed to add region", zap.Float64("start", start), zap.Float64("end", end), zap.Error(err))
		return
	}
	// Engines are not required to echo region-created for programmatic regions.
	m.OnRegionCreated(created)
}

func (m *RegionManager) holds(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slot.id != "" && m.slot.id == id
}

func (m *RegionManager) normalize(raw domain.Region) (domain.Region, bool) {
	start := roundTime(raw.Start)
	end := roundTime(raw.End)
	if start < 0 {
		start = 0
	}
	if duration := m.owner.trackDuration(); duration > 0 && end > duration {
		end = roundTime(duration)
	}
	region := domain.Region{ID: raw.ID, Start: start, End: end}
	return region, region.Valid()
}

func containsRegion(regions []domain.Region, id string) bool {
	for _, region := range regions {
		if region.ID == id {
			return true
		}
	}
	return false
}

func roundTime(seconds float64) float64 {
	return math.Round(seconds*regionPrecision) / regionPrecision
}
