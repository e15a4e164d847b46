package stream

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mahidalhan/axon/internal/eeg"
	"go.uber.org/zap"
)

// Reference components of the simulated signal: alpha, beta and theta.
var simComponents = [...]struct{ freq, amp float64 }{
	{10, 10},
	{20, 5},
	{6, 3},
}

const (
	simSharedNoise  = 2.0
	simChannelNoise = 0.5
	// Samples emitted per tick in paced mode.
	simBatch = 8
)

type SimulatorConfig struct {
	SamplingRate int
	Seed         int64
	// Start is the timestamp of the first sample; zero means time of Start.
	Start time.Time
	// Burst emits samples as fast as the subscribers accept them instead of
	// pacing them at the sampling rate. Limit stops a burst after that many
	// samples; zero means unbounded.
	Burst      bool
	Limit      int
	BufferSize int
}

// Simulator produces the deterministic synthetic headband signal: a sum of
// 10 Hz, 20 Hz and 6 Hz sinusoids plus N(0,2) noise shared by every channel
// and independent N(0,0.5) noise per channel.
type Simulator struct {
	cfg    SimulatorConfig
	log    *zap.Logger
	broker *Broker
	onDrop func()

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	pump   *pump
	active atomic.Bool

	// Producer state, owned by the producer goroutine.
	rng   *rand.Rand
	n     int
	start time.Time
}

func NewSimulator(cfg SimulatorConfig, log *zap.Logger) *Simulator {
	if cfg.SamplingRate <= 0 {
		cfg.SamplingRate = 256
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4 * cfg.SamplingRate
	}
	return &Simulator{
		cfg:    cfg,
		log:    log,
		broker: NewBroker(),
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
}

func (s *Simulator) Name() string { return "simulator" }

// OnDrop installs a hook called for every sample dropped by a full queue.
func (s *Simulator) OnDrop(fn func()) { s.onDrop = fn }

func (s *Simulator) Subscribe(h Handler) func() { return s.broker.Subscribe(h) }

func (s *Simulator) Active() bool { return s.active.Load() }

func (s *Simulator) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}
	if s.start.IsZero() {
		s.start = s.cfg.Start
		if s.start.IsZero() {
			s.start = time.Now()
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.pump = newPump(s.cfg.BufferSize, s.broker, s.onDrop)
	s.active.Store(true)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.active.Store(false)
		if s.cfg.Burst {
			s.burst(ctx)
			return
		}
		s.paced(ctx)
	}()

	s.log.Info("Simulated stream started",
		zap.Int("sampling_rate", s.cfg.SamplingRate),
		zap.Bool("burst", s.cfg.Burst))
	return nil
}

func (s *Simulator) paced(ctx context.Context) {
	interval := time.Duration(float64(time.Second) * simBatch / float64(s.cfg.SamplingRate))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i := 0; i < simBatch; i++ {
				s.pump.offer(s.Next())
			}
		}
	}
}

func (s *Simulator) burst(ctx context.Context) {
	for i := 0; s.cfg.Limit == 0 || i < s.cfg.Limit; i++ {
		if !s.pump.send(ctx.Done(), s.Next()) {
			return
		}
	}
}

// Stop cancels the producer, delivers what is already queued and returns
// once no subscriber can be called again. A stopped simulator may be
// restarted and continues the same sample sequence.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.pump.close()
	s.cancel = nil
	s.log.Info("Simulated stream stopped", zap.Uint64("dropped", s.pump.Dropped()))
}

// Wait blocks until a bounded burst has been fully delivered or ctx ends.
func (s *Simulator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	p := s.pump
	s.mu.Unlock()
	if p != nil {
		p.close()
	}
	return nil
}

// Next generates the next sample of the sequence. It is not safe to call
// concurrently with a running producer.
func (s *Simulator) Next() eeg.Sample {
	if s.start.IsZero() {
		s.start = s.cfg.Start
	}
	t := float64(s.n) / float64(s.cfg.SamplingRate)
	var base float64
	for _, c := range simComponents {
		base += c.amp * math.Sin(2*math.Pi*c.freq*t)
	}
	base += s.rng.NormFloat64() * simSharedNoise

	sample := eeg.Sample{Timestamp: s.start.Add(time.Duration(t * float64(time.Second)))}
	for i := range sample.Values {
		sample.Values[i] = base + s.rng.NormFloat64()*simChannelNoise
	}
	s.n++
	return sample
}
