package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cschwartz85032/loanserve-sub010/internal/broker"
)

// Run starts the outbox dispatcher, every registered queue consumer, and
// the webhook HTTP listener, then blocks until SIGINT/SIGTERM or ctx is
// cancelled — generalized from components/consumer/internal/bootstrap's
// signal.Notify shutdown, since this worker additionally owns an HTTP
// server the teacher's pure-consumer service doesn't run.
func (s *Service) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{Addr: ":" + s.Config.HTTPPort, Handler: s.Router}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	record := func(err error) {
		if err == nil {
			return
		}

		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	wg.Add(1)

	go func() {
		defer wg.Done()
		record(s.Dispatcher.Run(ctx))
	}()

	for _, binding := range s.queues {
		binding := binding

		wg.Add(1)

		go func() {
			defer wg.Done()

			s.Logger.Infof("starting %d consumer(s) for queue %s", binding.Options.Workers, binding.Options.Queue)
			record(broker.Consume(ctx, s.Broker, s.Logger, binding.Options, binding.Handler))
		}()
	}

	wg.Add(1)

	go func() {
		defer wg.Done()

		s.Logger.Infof("listening for webhooks on :%s", s.Config.HTTPPort)

		err := server.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			record(err)
		}
	}()

	<-ctx.Done()
	s.Logger.Info("shutdown signal received, stopping worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	record(server.Shutdown(shutdownCtx))

	wg.Wait()

	return firstErr
}
