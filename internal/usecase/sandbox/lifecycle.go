package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/multierr"

	"github.com/bnema/sandboxer/internal/domain"
)

// start starts the container and waits until the engine reports it running,
// bounded by the start timeout. With a readiness URL and a prober it also
// waits for the URL to answer.
func (s *Service) start(ctx context.Context, containerID, readinessURL string) (*domain.Container, error) {
	startCtx, cancel := context.WithTimeout(ctx, s.config.StartTimeout)
	defer cancel()

	if err := s.engine.StartContainer(startCtx, containerID); err != nil {
		return nil, fmt.Errorf("start container %s: %w", containerID, err)
	}

	running, err := s.waitForRunning(startCtx, containerID)
	if err != nil {
		return nil, err
	}

	if s.config.ReadinessDelay > 0 {
		if running, err = s.settle(startCtx, containerID); err != nil {
			return nil, err
		}
	}
	if readinessURL != "" && s.prober != nil {
		return s.waitForReady(startCtx, containerID, readinessURL)
	}
	return running, nil
}

// waitForRunning polls the container until it is running. A container that
// exits while starting is reported with its exit code and engine error.
func (s *Service) waitForRunning(ctx context.Context, containerID string) (*domain.Container, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0

	var running *domain.Container
	op := func() error {
		c, err := s.engine.InspectContainer(ctx, containerID)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("inspect container %s: %w", containerID, err))
		}
		switch domain.ContainerStatus(c.Status) {
		case domain.ContainerStatusRunning:
			running = c
			return nil
		case domain.ContainerStatusExited, domain.ContainerStatusDead:
			return backoff.Permanent(exitError(c))
		}
		return fmt.Errorf("container %s is %s", containerID, c.Status)
	}

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if ctx.Err() != nil && !errors.Is(err, domain.ErrStart) {
			return nil, fmt.Errorf("waiting for container %s to run: %w", containerID, ctx.Err())
		}
		return nil, err
	}
	return running, nil
}

// settle waits for the readiness delay and checks the container is still running.
func (s *Service) settle(ctx context.Context, containerID string) (*domain.Container, error) {
	log := zerowrap.FromCtx(ctx)
	log.Debug().Dur("delay", s.config.ReadinessDelay).Msg("waiting for sandbox readiness")

	timer := time.NewTimer(s.config.ReadinessDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for sandbox readiness: %w", ctx.Err())
	case <-timer.C:
	}

	c, err := s.engine.InspectContainer(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("inspect container %s: %w", containerID, err)
	}
	if !c.Running() {
		return nil, exitError(c)
	}
	return c, nil
}

// waitForReady polls url until it answers with a 2xx status. The container is
// inspected between failed probes so an exit is reported instead of a timeout.
func (s *Service) waitForReady(ctx context.Context, containerID, url string) (*domain.Container, error) {
	log := zerowrap.FromCtx(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0

	var (
		ready    *domain.Container
		attempts int
		lastErr  error
	)
	op := func() error {
		attempts++
		status, elapsed, err := s.prober.Probe(ctx, url)
		if err == nil && status >= 200 && status < 300 {
			log.Debug().Str("url", url).Int("status", status).Int64("elapsed_ms", elapsed).Msg("sandbox ready")
			c, ierr := s.engine.InspectContainer(ctx, containerID)
			if ierr != nil {
				return backoff.Permanent(fmt.Errorf("inspect container %s: %w", containerID, ierr))
			}
			ready = c
			return nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("%s answered %d", url, status)
		}

		c, ierr := s.engine.InspectContainer(ctx, containerID)
		if ierr != nil {
			return backoff.Permanent(fmt.Errorf("inspect container %s: %w", containerID, ierr))
		}
		if !c.Running() {
			return backoff.Permanent(exitError(c))
		}
		return lastErr
	}

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if ctx.Err() != nil && !errors.Is(err, domain.ErrStart) {
			return nil, fmt.Errorf("waiting for %s after %d probes (last: %v): %w", url, attempts, lastErr, ctx.Err())
		}
		return nil, err
	}
	return ready, nil
}

func exitError(c *domain.Container) error {
	if c.Error != "" {
		return fmt.Errorf("%w: container %s exited with code %d: %s", domain.ErrStart, c.ID, c.ExitCode, c.Error)
	}
	return fmt.Errorf("%w: container %s exited with code %d", domain.ErrStart, c.ID, c.ExitCode)
}

// removeContainer stops and removes a container, bounded by the stop timeout.
// A container that is already gone is not an error.
func (s *Service) removeContainer(ctx context.Context, containerID string) error {
	stopCtx, cancel := context.WithTimeout(ctx, s.config.StopTimeout+5*time.Second)
	defer cancel()

	var err error
	if serr := s.engine.StopContainer(stopCtx, containerID, int(s.config.StopTimeout.Seconds())); serr != nil &&
		!errors.Is(serr, domain.ErrNotFound) {
		err = multierr.Append(err, fmt.Errorf("stop container %s: %w", containerID, serr))
	}
	if rerr := s.engine.RemoveContainer(stopCtx, containerID, true); rerr != nil &&
		!errors.Is(rerr, domain.ErrNotFound) {
		return multierr.Append(err, fmt.Errorf("remove container %s: %w", containerID, rerr))
	}
	// Stop errors do not matter once the forced removal went through.
	return nil
}

// cleanupFailedContainer removes a container that failed to start. It runs on
// a context detached from cancellation so an aborted reconciliation still
// leaves no partial container behind.
func (s *Service) cleanupFailedContainer(ctx context.Context, containerID string) error {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.StopTimeout+5*time.Second)
	defer cancel()
	return s.removeContainer(cleanupCtx, containerID)
}
