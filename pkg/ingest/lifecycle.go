package ingest

import (
	"context"
	"errors"
	"net/http"
	"os/signal"

	"github.com/JailtonJunior94/pipetrace/pkg/observability"
)

// Start serves until ctx is done, one of the configured signals arrives or
// the listener fails. On a stop request it drains within ShutdownTimeout.
func (s *Server) Start(ctx context.Context) error {
	if len(s.config.Signals) > 0 {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, s.config.Signals...)
		defer stop()
	}

	s.logger.Info(ctx, "ingest server listening",
		observability.String("address", s.config.Address),
		observability.String("service", s.config.ServiceName),
		observability.String("version", s.config.ServiceVersion),
	)

	listenErr := make(chan error, 1)
	go func() {
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		listenErr <- err
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			s.logger.Error(ctx, "ingest server stopped listening", observability.Error(err))
			return errors.Join(err, s.drain())
		}
		return s.drain()
	case <-ctx.Done():
		s.logger.Info(context.WithoutCancel(ctx), "stop requested, draining open requests",
			observability.Duration("timeout", s.config.ShutdownTimeout),
		)
		return s.drain()
	}
}

func (s *Server) drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops accepting requests, waits for in-flight ones, then shuts
// down the registered components so buffered spans are flushed. Only the
// first call has an effect; later calls return nil.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if httpErr := s.httpServer.Shutdown(ctx); httpErr != nil {
			s.logger.Error(ctx, "ingest server did not drain", observability.Error(httpErr))
			err = httpErr
		}
		for _, c := range s.shutdowners {
			if cErr := c.Shutdown(ctx); cErr != nil {
				s.logger.Error(ctx, "component shutdown failed", observability.Error(cErr))
				err = errors.Join(err, cErr)
			}
		}
		s.logger.Info(ctx, "ingest server stopped")
	})
	return err
}
