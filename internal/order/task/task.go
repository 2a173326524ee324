// Package task runs the two compensating sweeps: cancelling stale
// unpaid orders and auto-confirming long-shipped ones. The sweeps read
// repository state and reuse the same transition logic as the request
// paths, so a re-run against an already-moved order is a no-op.
package task

import (
	"context"
	"fmt"
	"time"

	"github.com/lingbai-i/mall-order-go/pkg/logging"
)

const (
	timeoutJobName     = "order:task:timeout"
	autoConfirmJobName = "order:task:auto-confirm"
)

type Orders interface {
	HandleTimeoutOrders(ctx context.Context) (int, error)
	AutoConfirmOrders(ctx context.Context) (int, error)
}

// Locker serializes a named job across instances; Run returns false
// when another holder already has the job.
type Locker interface {
	Run(ctx context.Context, name string, fn func(ctx context.Context) error) (bool, error)
}

type Sweeper struct {
	svc     Orders
	lock    Locker
	service string

	TimeoutInterval time.Duration // timeout sweep period
	ConfirmAtHour   int           // local hour of the daily auto-confirm run
	now             func() time.Time
}

func NewSweeper(service string, svc Orders, lock Locker) *Sweeper {
	return &Sweeper{
		svc:             svc,
		lock:            lock,
		service:         service,
		TimeoutInterval: 5 * time.Minute,
		ConfirmAtHour:   2,
		now:             time.Now,
	}
}

// Start launches both sweep loops and returns. The loops stop when ctx
// is cancelled; a failed run never crashes them.
func (s *Sweeper) Start(ctx context.Context) {
	go s.timeoutLoop(ctx)
	go s.autoConfirmLoop(ctx)
}

func (s *Sweeper) timeoutLoop(ctx context.Context) {
	ticker := time.NewTicker(s.TimeoutInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunTimeoutSweep(ctx)
		}
	}
}

func (s *Sweeper) autoConfirmLoop(ctx context.Context) {
	for {
		wait := time.Until(s.nextConfirmRun())
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			s.RunAutoConfirmSweep(ctx)
		}
	}
}

func (s *Sweeper) nextConfirmRun() time.Time {
	now := s.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.ConfirmAtHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// RunTimeoutSweep executes one guarded timeout sweep and returns the
// number of orders it cancelled; -1 means the job lock was held
// elsewhere and the run was skipped.
func (s *Sweeper) RunTimeoutSweep(ctx context.Context) int {
	return s.runGuarded(ctx, timeoutJobName, "timeout_sweep", s.svc.HandleTimeoutOrders)
}

// RunAutoConfirmSweep executes one guarded auto-confirm sweep; same
// return convention as RunTimeoutSweep.
func (s *Sweeper) RunAutoConfirmSweep(ctx context.Context) int {
	return s.runGuarded(ctx, autoConfirmJobName, "auto_confirm_sweep", s.svc.AutoConfirmOrders)
}

func (s *Sweeper) runGuarded(ctx context.Context, job, step string, sweep func(ctx context.Context) (int, error)) (processed int) {
	defer func() {
		if r := recover(); r != nil {
			logging.Log(logging.Fields{
				Service: s.service, Step: step, Status: "panic", Error: fmt.Sprint(r),
			})
			processed = 0
		}
	}()

	acquired, err := s.lock.Run(ctx, job, func(ctx context.Context) error {
		n, err := sweep(ctx)
		processed = n
		return err
	})
	if err != nil {
		logging.Log(logging.Fields{Service: s.service, Step: step, Status: "error", Error: err.Error()})
		return processed
	}
	if !acquired {
		logging.Log(logging.Fields{Service: s.service, Step: step, Status: "skipped", Message: "job lock held elsewhere"})
		return -1
	}
	logging.Log(logging.Fields{Service: s.service, Step: step, Status: "done", Message: fmt.Sprintf("processed %d orders", processed)})
	return processed
}
