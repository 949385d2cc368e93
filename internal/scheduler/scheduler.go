// Package scheduler hands out cards shortly before appointments start and
// takes them back once appointments end.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/card-tracking/internal/config"
	"github.com/iliyamo/card-tracking/internal/model"
)

// AppointmentSource lists appointments with their visitor and the
// visitor's card loaded.
type AppointmentSource interface {
	DueForCheckIn(ctx context.Context, from, to time.Time) ([]model.Appointment, error)
	DueForCheckOut(ctx context.Context, before time.Time) ([]model.Appointment, error)
}

// CardService is the slice of the tracking service the passes drive.
// Manual API calls go through the same methods.
type CardService interface {
	FindAvailableCards(ctx context.Context, limit int) ([]model.Card, error)
	AssignToVisitor(ctx context.Context, cardID, visitorID string) (*model.Card, error)
	CheckIn(ctx context.Context, appointmentID string) (*model.Appointment, error)
	CheckOut(ctx context.Context, appointmentID string) (*model.Appointment, error)
}

type Clock interface {
	Now() time.Time
}

var (
	outcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "card_tracking_scheduler_appointments_total",
		Help: "Appointments handled by the scheduler, by pass and outcome.",
	}, []string{"pass", "outcome"})
	tickSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "card_tracking_scheduler_tick_seconds",
		Help:    "Duration of a full scheduler tick.",
		Buckets: prometheus.DefBuckets,
	})
)

// PassResult counts what one pass did.
type PassResult struct {
	Assigned  int // card handed out and appointment started
	Started   int // appointment started, visitor already held a card
	Released  int // card taken back
	Completed int // appointment completed
	Skipped   int // nothing to do, e.g. no card available
	Failed    int
}

type Scheduler struct {
	appointments AppointmentSource
	cards        CardService
	clock        Clock
	cfg          config.SchedulerConfig
	log          logrus.FieldLogger
	running      sync.Mutex
}

func New(appointments AppointmentSource, cards CardService, clock Clock, cfg config.SchedulerConfig, log logrus.FieldLogger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	// Zero lookahead hands cards out at the check-in instant.
	if cfg.Lookahead < 0 {
		cfg.Lookahead = 15 * time.Minute
	}
	if cfg.TickTimeout <= 0 || cfg.TickTimeout > cfg.Interval {
		cfg.TickTimeout = cfg.Interval
	}
	return &Scheduler{
		appointments: appointments,
		cards:        cards,
		clock:        clock,
		cfg:          cfg,
		log:          log.WithField("component", "scheduler"),
	}
}

// Start runs both passes every Interval until ctx is cancelled.  It
// returns immediately; the returned channel is closed when the loop
// exits.
func (s *Scheduler) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled")
		close(done)
		return done
	}
	ticker := time.NewTicker(s.cfg.Interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		s.log.WithFields(logrus.Fields{"interval": s.cfg.Interval, "lookahead": s.cfg.Lookahead}).Info("scheduler started")
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, s.cfg.TickTimeout)
				s.RunOnce(tickCtx)
				cancel()
			}
		}
	}()
	return done
}

// RunOnce runs the assignment pass and then the release pass.  A call
// made while another run is in progress returns at once with ran=false.
func (s *Scheduler) RunOnce(ctx context.Context) (assign, release PassResult, ran bool) {
	if !s.running.TryLock() {
		s.log.Warn("previous run still in progress, skipping")
		return assign, release, false
	}
	defer s.running.Unlock()

	start := time.Now()
	defer func() { tickSeconds.Observe(time.Since(start).Seconds()) }()

	assign = s.AssignmentPass(ctx)
	release = s.ReleasePass(ctx)
	if assign != (PassResult{}) || release != (PassResult{}) {
		s.log.WithFields(logrus.Fields{
			"assigned":  assign.Assigned,
			"started":   assign.Started,
			"skipped":   assign.Skipped,
			"released":  release.Released,
			"completed": release.Completed,
			"failed":    assign.Failed + release.Failed,
		}).Info("scheduler tick")
	}
	return assign, release, true
}
