// Package digest posts ranking reports to configured rooms on a cron
// schedule.
package digest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"chatkat/pkg/command"
	"chatkat/pkg/models"
	"chatkat/pkg/platform"
	"chatkat/pkg/ranking"
	"chatkat/pkg/state/logger"
)

// Answerer renders a report for a parsed request.
type Answerer interface {
	Answer(ctx context.Context, spec models.QuerySpec) string
}

type Target struct {
	CommunityID string
	RoomID      string
	// Flags uses the command syntax, e.g. "-week -guild".
	Flags string
}

type Config struct {
	Cron    string
	Targets []Target
}

type Scheduler struct {
	cfg    Config
	parser *command.Parser
	answer Answerer
	sender platform.Sender
	now    func() time.Time

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

func New(cfg Config, parser *command.Parser, a Answerer, s platform.Sender) (*Scheduler, error) {
	if !gronx.New().IsValid(cfg.Cron) {
		return nil, fmt.Errorf("invalid digest cron %q", cfg.Cron)
	}
	return &Scheduler{cfg: cfg, parser: parser, answer: a, sender: s, now: time.Now}, nil
}

// Start runs the schedule loop until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.done = make(chan struct{})
	logger.Info("digest_enabled", "cron", s.cfg.Cron, "targets", len(s.cfg.Targets))
	go func() {
		defer close(s.done)
		s.scheduleLoop(ctx)
	}()
}

// Wait blocks until the loop started by Start has returned.
func (s *Scheduler) Wait() {
	if s.done != nil {
		<-s.done
	}
}

func (s *Scheduler) scheduleLoop(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(s.cfg.Cron, s.now(), false)
		if err != nil {
			logger.Error("digest_nexttick_failed", "cron", s.cfg.Cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait < time.Second {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
			s.runJob(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if _, err := s.RunNow(ctx); err != nil {
		logger.Error("digest_run_error", "error", err)
	}
}

// RunNow posts one report per target and returns how many were sent.
// Targets whose history is still importing, or with nothing to report, are
// skipped.
func (s *Scheduler) RunNow(ctx context.Context) (int, error) {
	logger.Info("digest_run_start", "targets", len(s.cfg.Targets))
	sent := 0
	var errs []error
	for _, t := range s.cfg.Targets {
		spec := s.parser.Parse(t.Flags, models.AuthorityOwner)
		spec.CommunityID, spec.RoomID = t.CommunityID, t.RoomID
		text := s.answer.Answer(ctx, spec)
		if text == "" || text == ranking.NotReadyText {
			logger.Info("digest_target_skipped", "community", t.CommunityID, "room", t.RoomID, "empty", text == "")
			continue
		}
		if err := s.sender.Send(ctx, t.RoomID, text); err != nil {
			errs = append(errs, fmt.Errorf("send to %s/%s: %w", t.CommunityID, t.RoomID, err))
			continue
		}
		sent++
	}
	logger.Info("digest_run_done", "sent", sent, "failed", len(errs))
	return sent, errors.Join(errs...)
}
