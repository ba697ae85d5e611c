package utils

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session ties a connection or service to a cancellable context. The ID only
// exists to correlate log lines.
type Session struct {
	id        string
	context   context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

func NewSession(ctx context.Context) Session {
	ctx, cancel := context.WithCancel(ctx)
	return Session{
		id:        uuid.NewString(),
		context:   ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Started() time.Time {
	return s.startTime
}

func (s *Session) Ctx() context.Context {
	return s.context
}

func (s *Session) IsDone() bool {
	return s.context.Err() != nil
}

func (s *Session) Cancel() {
	s.cancel()
}
