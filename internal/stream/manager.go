package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mahidalhan/axon/internal/eeg"
	"github.com/mahidalhan/axon/internal/features"
	"github.com/mahidalhan/axon/internal/lri"
	"github.com/mahidalhan/axon/internal/observability"
	"go.uber.org/zap"
)

// RealtimeLRI is the latest LRI of a live connection.
type RealtimeLRI struct {
	Timestamp              time.Time  `json:"timestamp"`
	LRI                    float64    `json:"lri"`
	BaseLRI                float64    `json:"base_lri"`
	Alertness              float64    `json:"alertness_score"`
	Focus                  float64    `json:"focus_score"`
	ArousalBalance         float64    `json:"arousal_balance_score"`
	PostExerciseMultiplier float64    `json:"post_exercise_multiplier"`
	QualityTier            lri.Status `json:"quality_tier"`
}

// Sample converts the snapshot into a history sample.
func (r RealtimeLRI) Sample() lri.Sample {
	return lri.Sample{
		Timestamp: r.Timestamp,
		Result: lri.Result{
			LRI:                    r.LRI,
			BaseLRI:                r.BaseLRI,
			Alertness:              r.Alertness,
			Focus:                  r.Focus,
			ArousalBalance:         r.ArousalBalance,
			Status:                 r.QualityTier,
			PostExerciseMultiplier: r.PostExerciseMultiplier,
		},
	}
}

type Status struct {
	ID                string    `json:"id"`
	Connected         bool      `json:"connected"`
	SimulationMode    bool      `json:"simulation_mode"`
	Device            Device    `json:"device"`
	SamplingRate      int       `json:"sampling_rate"`
	WindowSizeSeconds float64   `json:"window_size_seconds"`
	BufferFill        float64   `json:"buffer_fill"`
	HasLRIData        bool      `json:"has_lri_data"`
	HasBandPowerData  bool      `json:"has_band_power_data"`
	ConnectedAt       time.Time `json:"connected_at"`
}

type ManagerConfig struct {
	SamplingRate  int
	WindowSeconds float64
	// RecomputeEvery throttles estimation to once per that many samples
	// once the buffers are full.
	RecomputeEvery         int
	PostExerciseMultiplier float64
}

func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		SamplingRate:           256,
		WindowSeconds:          2.0,
		RecomputeEvery:         32,
		PostExerciseMultiplier: 1.0,
	}
}

// Manager turns one source's samples into published snapshots. The buffers
// are touched only by the source's dispatch goroutine; readers see whole
// snapshots through atomic pointer swaps and never block the producer.
type Manager struct {
	id         string
	source     Source
	device     Device
	simulation bool
	cfg        ManagerConfig
	calc       *lri.Calculator
	log        *zap.Logger
	metrics    *observability.Metrics

	buffers        *eeg.ChannelBuffers
	sinceRecompute int
	buffered       atomic.Int64

	bandPower atomic.Pointer[eeg.BandPowerSnapshot]
	current   atomic.Pointer[RealtimeLRI]
	updates   atomic.Uint64

	mu          sync.Mutex
	unsubscribe func()
	connectedAt time.Time
}

func NewManager(id string, source Source, device Device, simulation bool, cfg ManagerConfig, calc *lri.Calculator, log *zap.Logger, metrics *observability.Metrics) *Manager {
	if cfg.SamplingRate <= 0 {
		cfg.SamplingRate = 256
	}
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = 2.0
	}
	if cfg.RecomputeEvery <= 0 {
		cfg.RecomputeEvery = 1
	}
	m := &Manager{
		id:             id,
		source:         source,
		device:         device,
		simulation:     simulation,
		cfg:            cfg,
		calc:           calc,
		log:            log.With(zap.String("connection", id)),
		metrics:        metrics,
		buffers:        eeg.NewChannelBuffers(cfg.WindowSeconds, cfg.SamplingRate),
		sinceRecompute: cfg.RecomputeEvery,
	}
	if d, ok := source.(interface{ OnDrop(func()) }); ok {
		d.OnDrop(func() { metrics.SampleDropped(source.Name()) })
	}
	return m
}

func (m *Manager) ID() string { return m.id }

// Connect subscribes to the source and starts it. Channel failures surface
// here and leave the manager disconnected.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubscribe != nil {
		return ErrAlreadyStarted
	}
	unsubscribe := m.source.Subscribe(m.onSample)
	if err := m.source.Start(ctx); err != nil {
		unsubscribe()
		m.log.Error("Failed to start stream", zap.Error(err))
		return err
	}
	m.unsubscribe = unsubscribe
	m.connectedAt = time.Now()
	m.metrics.ConnectionOpened()
	m.log.Info("Device connected",
		zap.String("source", m.source.Name()),
		zap.String("address", m.device.Address),
		zap.Int("buffer_capacity", m.buffers.Cap()))
	return nil
}

// Disconnect stops the source; no snapshot is published after it returns.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubscribe == nil {
		return
	}
	m.source.Stop()
	m.unsubscribe()
	m.unsubscribe = nil
	m.metrics.ConnectionClosed(m.id)
	m.log.Info("Device disconnected", zap.Uint64("snapshots", m.updates.Load()))
}

func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unsubscribe != nil && m.source.Active()
}

func (m *Manager) onSample(s eeg.Sample) {
	m.metrics.SampleReceived(m.source.Name())
	m.buffers.Push(s)
	if n := m.buffered.Load(); n < int64(m.buffers.Cap()) {
		m.buffered.Store(n + 1)
	}
	if !m.buffers.Full() {
		return
	}
	if m.sinceRecompute < m.cfg.RecomputeEvery {
		m.sinceRecompute++
		return
	}
	m.sinceRecompute = 1
	m.recompute(s.Timestamp)
}

func (m *Manager) recompute(ts time.Time) {
	start := time.Now()
	snap := eeg.ComputeSnapshot(ts, m.buffers.Arrays(), float64(m.cfg.SamplingRate))
	res := m.calc.Calculate(features.FromSnapshot(snap), m.cfg.PostExerciseMultiplier)
	rt := &RealtimeLRI{
		Timestamp:              ts,
		LRI:                    res.LRI,
		BaseLRI:                res.BaseLRI,
		Alertness:              res.Alertness,
		Focus:                  res.Focus,
		ArousalBalance:         res.ArousalBalance,
		PostExerciseMultiplier: res.PostExerciseMultiplier,
		QualityTier:            res.Status,
	}
	m.bandPower.Store(&snap)
	m.current.Store(rt)
	m.updates.Add(1)
	m.metrics.SnapshotPublished(m.id, res.LRI, time.Since(start))
}

// CurrentLRI returns false until the buffers have filled once.
func (m *Manager) CurrentLRI() (RealtimeLRI, bool) {
	p := m.current.Load()
	if p == nil {
		return RealtimeLRI{}, false
	}
	return *p, true
}

func (m *Manager) CurrentBandPower() (eeg.BandPowerSnapshot, bool) {
	p := m.bandPower.Load()
	if p == nil {
		return eeg.BandPowerSnapshot{}, false
	}
	return *p, true
}

// Updates counts published snapshots.
func (m *Manager) Updates() uint64 { return m.updates.Load() }

func (m *Manager) Status() Status {
	m.mu.Lock()
	connectedAt := m.connectedAt
	m.mu.Unlock()
	return Status{
		ID:                m.id,
		Connected:         m.Connected(),
		SimulationMode:    m.simulation,
		Device:            m.device,
		SamplingRate:      m.cfg.SamplingRate,
		WindowSizeSeconds: m.cfg.WindowSeconds,
		BufferFill:        float64(m.buffered.Load()) / float64(m.buffers.Cap()),
		HasLRIData:        m.current.Load() != nil,
		HasBandPowerData:  m.bandPower.Load() != nil,
		ConnectedAt:       connectedAt,
	}
}
