// Package ticker provides a source that emits committed time IUs on a
// schedule. Schedule is either a fixed interval or a cron expression.
package ticker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"

	"pipelined.dev/incremental"
)

// Type is the IU type of ticks. Payload is time.Time.
const Type incremental.Type = "tick"

// Schedule returns the next activation time after provided one.
// *cronexpr.Expression implements it.
type Schedule interface {
	Next(time.Time) time.Time
}

// Interval is a schedule with fixed period.
type Interval time.Duration

// Next implements Schedule.
func (i Interval) Next(t time.Time) time.Time {
	return t.Add(time.Duration(i))
}

// Cron parses cron expression into schedule.
func Cron(expr string) (Schedule, error) {
	e, err := cronexpr.Parse(expr)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Source emits a committed IU on every activation of the schedule. Ticks
// are final right away, so source never revokes.
type Source struct {
	*incremental.Base
	schedule Schedule
	// Limit stops ticking after provided number of ticks. Zero means no
	// limit.
	Limit int

	mu      sync.Mutex
	trigger incremental.Trigger
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New returns ticker source with provided schedule.
func New(name string, schedule Schedule) *Source {
	return &Source{
		Base:     incremental.NewBase(name, Type),
		schedule: schedule,
	}
}

// Bind implements incremental.Source.
func (s *Source) Bind(t incremental.Trigger) {
	s.mu.Lock()
	s.trigger = t
	s.mu.Unlock()
}

// Start implements incremental.Starter. It starts the timer goroutine.
func (s *Source) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trigger == nil {
		return errors.New("ticker is not bound")
	}
	if s.stop != nil {
		return errors.New("ticker is already started")
	}
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.tick(s.trigger, s.stop)
	return nil
}

// Flush implements incremental.Flusher. It stops the timer goroutine.
func (s *Source) Flush(context.Context) error {
	s.mu.Lock()
	if s.stop != nil {
		close(s.stop)
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *Source) tick(trigger incremental.Trigger, stop <-chan struct{}) {
	defer s.wg.Done()
	log := s.Logger()
	var ticks int
	now := time.Now()
	for s.Limit == 0 || ticks < s.Limit {
		next := s.schedule.Next(now)
		if next.IsZero() {
			log.Debug("schedule has no more activations")
			return
		}
		t := time.NewTimer(time.Until(next))
		select {
		case now = <-t.C:
		case <-stop:
			t.Stop()
			return
		}
		if err := trigger(now); err != nil {
			log.WithError(err).Debug("tick rejected")
			continue
		}
		ticks++
	}
}

// ProcessEvent implements incremental.Source.
func (s *Source) ProcessEvent(event any) (incremental.UpdateMessage, error) {
	var m incremental.UpdateMessage
	t, ok := event.(time.Time)
	if !ok {
		return m, errors.New("tick must be time.Time")
	}
	iu := s.AddIU(&m, t)
	if err := s.CommitIU(&m, iu); err != nil {
		return incremental.UpdateMessage{}, err
	}
	// committed ticks are not needed in the buffer.
	s.Reset()
	return m, nil
}

// ProcessUpdate implements incremental.Module. Ticker has no inputs.
func (s *Source) ProcessUpdate(incremental.UpdateMessage) (incremental.UpdateMessage, error) {
	return incremental.UpdateMessage{}, nil
}
