// Package service starts and stops the long-running parts of a binary together.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Runnable is a background service, Run must not block.
type Runnable interface {
	Run()
	Shutdown(ctx context.Context) error
}

// Group runs services in the order they were added
// and stops them in reverse.
type Group struct {
	list []Runnable
}

func (g *Group) Add(services ...Runnable) { g.list = append(g.list, services...) }

func (g *Group) Len() int { return len(g.list) }

func (g *Group) Start() {
	for _, s := range g.list {
		s.Run()
	}
}

// Shutdown stops every service even if some fail,
// the error lists all failures.
func (g *Group) Shutdown(ctx context.Context) error {
	var failed []string
	var first error
	for i := len(g.list) - 1; i >= 0; i-- {
		s := g.list[i]
		err := s.Shutdown(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			continue
		}
		if first == nil {
			first = err
		}
		failed = append(failed, fmt.Sprintf("%v: %v", name(s), err))
	}
	if first == nil {
		return nil
	}
	return &ShutdownError{Services: failed, err: first}
}

// ShutdownError unwraps into the first failure.
type ShutdownError struct {
	Services []string
	err      error
}

func (e *ShutdownError) Error() string {
	return "failed to stop [" + strings.Join(e.Services, "; ") + "]"
}

func (e *ShutdownError) Unwrap() error { return e.err }

func name(s Runnable) string {
	if n, ok := s.(fmt.Stringer); ok {
		return n.String()
	}
	return fmt.Sprintf("%T", s)
}
