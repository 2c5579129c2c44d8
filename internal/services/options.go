package services

import (
	"time"

	"github.com/google/uuid"

	"ledger/internal/log"
)

// Option customises the collaborators shared by every service.
type Option func(*runtime)

type runtime struct {
	logger *log.Logger
	now    func() time.Time
	newID  func() string
}

func newRuntime(component string, opts []Option) runtime {
	rt := runtime{
		logger: log.ForComponent(component),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(&rt)
	}
	rt.logger = rt.logger.WithComponent(component)
	return rt
}

func WithLogger(l *log.Logger) Option {
	return func(rt *runtime) {
		if l != nil {
			rt.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(rt *runtime) {
		if now != nil {
			rt.now = now
		}
	}
}

// WithIDGenerator replaces uuid.NewString.
func WithIDGenerator(newID func() string) Option {
	return func(rt *runtime) {
		if newID != nil {
			rt.newID = newID
		}
	}
}
