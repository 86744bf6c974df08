package notification

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/killclip/internal/logger"
)

// Metrics receives delivery outcomes.
type Metrics interface {
	NotificationSent(provider string, err error)
}

// Config configures the dispatch service.
type Config struct {
	QueueSize   int
	RateLimit   rate.Limit // deliveries per second
	Burst       int
	SendTimeout time.Duration
}

// DefaultConfig returns the dispatch defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:   32,
		RateLimit:   rate.Every(2 * time.Second),
		Burst:       5,
		SendTimeout: 30 * time.Second,
	}
}

// Service queues notifications and delivers them from a single worker.
type Service struct {
	providers []Provider
	metrics   Metrics
	config    Config
	limiter   *rate.Limiter
	queue     chan *Notification
	log       logger.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
	dropped int
}

// NewService returns a stopped service. metrics may be nil.
func NewService(config Config, metrics Metrics, providers ...Provider) *Service {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	return &Service{
		providers: providers,
		metrics:   metrics,
		config:    config,
		limiter:   rate.NewLimiter(config.RateLimit, config.Burst),
		queue:     make(chan *Notification, config.QueueSize),
		log:       GetLogger(),
	}
}

// Start launches the delivery worker.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	workerCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(workerCtx, s.done)
}

// Notify queues n. It never blocks; a full or stopped queue drops the notification.
func (s *Service) Notify(n *Notification) bool {
	if n == nil || len(s.providers) == 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- n:
		return true
	default:
		s.dropped++
		s.log.Warn("notification queue full, dropping notification",
			logger.String("title", n.Title),
			logger.String("type", string(n.Type)))
		return false
	}
}

// Dropped returns how many notifications were dropped because the queue was full.
func (s *Service) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Stop drains what is already queued, bounded by timeout, and stops the worker.
// A stopped service cannot be restarted.
func (s *Service) Stop(timeout time.Duration) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(timeout):
		s.log.Warn("notification worker did not drain in time", logger.Duration("timeout", timeout))
		cancel()
		<-done
	}
	cancel()
}

func (s *Service) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for n := range s.queue {
		if err := s.limiter.Wait(ctx); err != nil {
			continue
		}
		s.deliver(ctx, n)
	}
}

func (s *Service) deliver(ctx context.Context, n *Notification) {
	for _, p := range s.providers {
		sendCtx, cancel := ctx, context.CancelFunc(func() {})
		if s.config.SendTimeout > 0 {
			sendCtx, cancel = context.WithTimeout(ctx, s.config.SendTimeout)
		}
		err := p.Send(sendCtx, n)
		cancel()
		if s.metrics != nil {
			s.metrics.NotificationSent(p.Name(), err)
		}
		if err != nil {
			s.log.Warn("notification delivery failed",
				logger.String("provider", p.Name()),
				logger.String("notification_id", n.ID),
				logger.Error(err))
			continue
		}
		s.log.Debug("notification delivered",
			logger.String("provider", p.Name()),
			logger.String("notification_id", n.ID))
	}
}
