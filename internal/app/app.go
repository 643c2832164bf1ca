// Package app wires configuration into running services.
package app

import (
	"context"
	"os"

	"github.com/oklog/run"
)

// Service is a long-running unit that returns when ctx is cancelled.
type Service interface {
	Run(ctx context.Context) error
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context) error

func (f ServiceFunc) Run(ctx context.Context) error { return f(ctx) }

// App runs its services as one group: the first to return stops the rest.
type App struct {
	services []Service
	runner   *run.Group
}

func NewApp() *App {
	return &App{
		services: make([]Service, 0),
		runner:   &run.Group{},
	}
}

func (a *App) WithService(s Service) *App {
	a.services = append(a.services, s)
	return a
}

// WithSignals stops the group when one of sigs is received. Run then returns
// a run.SignalError.
func (a *App) WithSignals(ctx context.Context, sigs ...os.Signal) *App {
	a.runner.Add(run.SignalHandler(ctx, sigs...))
	return a
}

func (a *App) Run(ctx context.Context) error {
	for _, service := range a.services {
		a.runner.Add(actor(ctx, service))
	}

	return a.runner.Run()
}

func actor(ctx context.Context, service Service) (func() error, func(err error)) {
	ctx, cancel := context.WithCancelCause(ctx)

	return func() error {
			return service.Run(ctx)
		}, func(err error) {
			cancel(err)
		}
}
