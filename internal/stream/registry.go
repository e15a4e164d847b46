package stream

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mahidalhan/axon/internal/lri"
	"github.com/mahidalhan/axon/internal/observability"
	"go.uber.org/zap"
)

// ConnectRequest selects the device a new connection streams from.
type ConnectRequest struct {
	Address    string `json:"address"`
	Name       string `json:"name"`
	Simulation bool   `json:"use_simulation"`
	// PostExercise scores the connection with the post-exercise boost.
	PostExercise bool `json:"post_exercise"`
}

type RegistryConfig struct {
	Manager   ManagerConfig
	MQTT      MQTTConfig
	Simulator SimulatorConfig
	// PostExerciseBoost is the multiplier of post-exercise connections.
	PostExerciseBoost float64
}

// Registry owns the open connections, keyed by their handle id.
type Registry struct {
	cfg     RegistryConfig
	calc    *lri.Calculator
	log     *zap.Logger
	metrics *observability.Metrics

	mu       sync.RWMutex
	managers map[string]*Manager
}

func NewRegistry(cfg RegistryConfig, calc *lri.Calculator, log *zap.Logger, metrics *observability.Metrics) *Registry {
	return &Registry{
		cfg:      cfg,
		calc:     calc,
		log:      log,
		metrics:  metrics,
		managers: map[string]*Manager{},
	}
}

// Discover lists connectable devices. Simulation mode skips the broker.
func (r *Registry) Discover(ctx context.Context, simulation bool, timeout time.Duration) ([]Device, error) {
	if simulation {
		return []Device{SimulatedDevice}, nil
	}
	return Discover(ctx, r.cfg.MQTT, timeout, r.log)
}

// Connect opens a new connection and returns its manager.
func (r *Registry) Connect(ctx context.Context, req ConnectRequest) (*Manager, error) {
	id := uuid.NewString()

	var (
		src    Source
		device Device
	)
	if req.Simulation {
		simCfg := r.cfg.Simulator
		simCfg.SamplingRate = r.cfg.Manager.SamplingRate
		src = NewSimulator(simCfg, r.log.With(zap.String("connection", id)))
		device = SimulatedDevice
	} else {
		device = Device{Name: req.Name, Address: req.Address}
		if device.Address == "" {
			device.Address = req.Name
		}
		src = NewMQTTSource(r.cfg.MQTT, device.Address, r.log.With(zap.String("connection", id)))
	}

	mcfg := r.cfg.Manager
	if req.PostExercise && r.cfg.PostExerciseBoost > 0 {
		mcfg.PostExerciseMultiplier = r.cfg.PostExerciseBoost
	}
	m := NewManager(id, src, device, req.Simulation, mcfg, r.calc, r.log, r.metrics)
	if err := m.Connect(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.managers[id] = m
	r.mu.Unlock()
	return m, nil
}

// Add registers an already connected manager.
func (r *Registry) Add(m *Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.managers[m.ID()] = m
}

func (r *Registry) Get(id string) (*Manager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.managers[id]
	return m, ok
}

// Disconnect stops and forgets a connection.
func (r *Registry) Disconnect(id string) error {
	r.mu.Lock()
	m, ok := r.managers[id]
	delete(r.managers, id)
	r.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}
	m.Disconnect()
	return nil
}

// List returns every connection ordered by id.
func (r *Registry) List() []*Manager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Manager, 0, len(r.managers))
	for _, m := range r.managers {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Close disconnects everything.
func (r *Registry) Close() {
	r.mu.Lock()
	managers := r.managers
	r.managers = map[string]*Manager{}
	r.mu.Unlock()
	for _, m := range managers {
		m.Disconnect()
	}
}
