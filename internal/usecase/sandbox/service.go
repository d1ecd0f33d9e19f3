// Package sandbox implements the sandbox launcher use case.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/bnema/zerowrap"

	"github.com/bnema/sandboxer/internal/boundaries/out"
	"github.com/bnema/sandboxer/internal/domain"
)

// PullPolicy controls when referenced images are pulled.
type PullPolicy string

const (
	PullMissing PullPolicy = "missing"
	PullAlways  PullPolicy = "always"
	PullNever   PullPolicy = "never"
)

// ParsePullPolicy parses a pull policy, defaulting to PullMissing.
func ParsePullPolicy(s string) (PullPolicy, error) {
	switch PullPolicy(s) {
	case "", PullMissing:
		return PullMissing, nil
	case PullAlways, PullNever:
		return PullPolicy(s), nil
	}
	return "", fmt.Errorf("unknown pull policy %q", s)
}

// Config holds configuration needed by the sandbox service.
type Config struct {
	BuildTimeout   time.Duration
	StartTimeout   time.Duration
	StopTimeout    time.Duration
	LockTimeout    time.Duration
	ReadinessDelay time.Duration // Settle time after running before the container is considered up
	PullPolicy     PullPolicy

	AllowPrivileged   bool
	AllowEngineSocket bool
	CheckPorts        bool

	// BuildOutput receives decoded build progress. Nil discards it.
	BuildOutput io.Writer
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		BuildTimeout:      10 * time.Minute,
		StartTimeout:      60 * time.Second,
		StopTimeout:       30 * time.Second,
		LockTimeout:       30 * time.Second,
		PullPolicy:        PullMissing,
		AllowPrivileged:   true,
		AllowEngineSocket: true,
		CheckPorts:        true,
	}
}

// Service implements the SandboxService interface.
type Service struct {
	engine   out.ContainerEngine
	ports    out.PortChecker
	locker   out.NameLocker
	eventBus out.EventPublisher
	prober   out.ReadinessProber
	config   Config
}

// NewService creates a new sandbox service.
// ports and locker may be nil to disable port preflight and name locking.
func NewService(
	engine out.ContainerEngine,
	ports out.PortChecker,
	locker out.NameLocker,
	eventBus out.EventPublisher,
	config Config,
) *Service {
	defaults := DefaultConfig()
	if config.BuildTimeout <= 0 {
		config.BuildTimeout = defaults.BuildTimeout
	}
	if config.StartTimeout <= 0 {
		config.StartTimeout = defaults.StartTimeout
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = defaults.StopTimeout
	}
	if config.LockTimeout <= 0 {
		config.LockTimeout = defaults.LockTimeout
	}
	if config.PullPolicy == "" {
		config.PullPolicy = PullMissing
	}
	return &Service{
		engine:   engine,
		ports:    ports,
		locker:   locker,
		eventBus: eventBus,
		config:   config,
	}
}

// WithReadinessProber enables readiness checks for specs that carry a
// readiness URL.
func (s *Service) WithReadinessProber(prober out.ReadinessProber) *Service {
	s.prober = prober
	return s
}

// Reconcile converges the engine to spec and returns the running sandbox.
// Calling it again with an unchanged spec is a no-op.
func (s *Service) Reconcile(ctx context.Context, spec *domain.ServiceSpec) (handle *domain.SandboxHandle, err error) {
	name := sandboxName(spec)
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "Reconcile",
		"sandbox":             name,
	})
	log := zerowrap.FromCtx(ctx)
	started := time.Now()

	defer func() {
		if err != nil {
			s.publishFailed(ctx, name, err)
		}
	}()

	if err := s.validate(spec); err != nil {
		return nil, failure(name, domain.PhaseValidate, domain.ErrSpecValidation, err)
	}

	release, err := s.lock(ctx, name)
	if err != nil {
		return nil, failure(name, domain.PhaseLock, lockKind(err), err)
	}
	defer func() {
		if rerr := release(); rerr != nil {
			log.Warn().Err(rerr).Msg("failed to release sandbox lock")
		}
	}()

	existing, err := s.findExisting(ctx, spec.ContainerName)
	if err != nil {
		return nil, failure(name, domain.PhaseObserve, domain.ErrDependencyUnavailable, err)
	}
	if existing != nil && !existing.Managed() {
		return nil, failure(name, domain.PhaseObserve, domain.ErrResourceConflict,
			fmt.Errorf("container name %s is taken by %s, which sandboxer did not create", spec.ContainerName, existing.ID))
	}

	if err := s.preflightPorts(ctx, spec, existing); err != nil {
		return nil, failure(name, domain.PhasePreflight, domain.ErrResourceConflict, err)
	}

	if err := s.ensureDependencies(ctx, spec); err != nil {
		return nil, failure(name, domain.PhaseDependencies, domain.ErrDependencyUnavailable, err)
	}

	imageID, err := s.resolveImage(ctx, spec)
	if err != nil {
		fallback := domain.ErrDependencyUnavailable
		if spec.Build != nil {
			fallback = domain.ErrBuild
		}
		return nil, failure(name, domain.PhaseImage, fallback, err)
	}

	fingerprint := domain.Fingerprint(spec, imageID)
	obs := domain.Observe(existing, fingerprint)
	log.Debug().
		Str("observed", obs.State.String()).
		Str("fingerprint", fingerprint).
		Msg("observed existing sandbox")

	var (
		container *domain.Container
		action    domain.SandboxAction
	)

	switch obs.State {
	case domain.StateMatchesSpec:
		if obs.Container.Running() {
			container, action = obs.Container, domain.ActionReused
			break
		}
		container, err = s.startExisting(ctx, spec, obs.Container.ID)
		if err != nil {
			return nil, failure(name, domain.PhaseStart, domain.ErrStart, err)
		}
		action = domain.ActionStarted

	case domain.StateDiffersFromSpec:
		log.Info().Str(zerowrap.FieldEntityID, obs.Container.ID).Msg("sandbox differs from spec, replacing")
		if err := s.removeContainer(ctx, obs.Container.ID); err != nil {
			return nil, failure(name, domain.PhaseReplace, domain.ErrResourceConflict, err)
		}
		container, err = s.createAndStart(ctx, spec, fingerprint)
		if err != nil {
			return nil, err
		}
		action = domain.ActionReplaced

	default:
		container, err = s.createAndStart(ctx, spec, fingerprint)
		if err != nil {
			return nil, err
		}
		action = domain.ActionCreated
	}

	handle = &domain.SandboxHandle{
		ContainerID: container.ID,
		Name:        spec.ContainerName,
		Image:       spec.ImageRef(),
		ImageID:     imageID,
		Status:      container.Status,
		Ports:       slices.Clone(spec.Ports),
		Networks:    slices.Clone(spec.Networks),
		Fingerprint: fingerprint,
		Action:      action,
	}

	log.Info().
		Str(zerowrap.FieldEntityID, container.ID).
		Str("action", string(action)).
		Dur(zerowrap.FieldDuration, time.Since(started)).
		Msg("sandbox reconciled")

	s.publishReconciled(ctx, spec, handle)
	return handle, nil
}

// createAndStart creates the container, joins its extra networks and starts it.
// Anything created here is removed again when a later step fails.
func (s *Service) createAndStart(ctx context.Context, spec *domain.ServiceSpec, fingerprint string) (*domain.Container, error) {
	log := zerowrap.FromCtx(ctx)
	name := sandboxName(spec)

	config := &domain.ContainerConfig{
		Name:       spec.ContainerName,
		Image:      spec.ImageRef(),
		Privileged: spec.Privileged,
		Env:        spec.EnvList(),
		Cmd:        slices.Clone(spec.Command),
		WorkingDir: spec.WorkingDir,
		Mounts:     slices.Clone(spec.Mounts),
		Ports:      slices.Clone(spec.Ports),
		Networks:   slices.Clone(spec.Networks),
		Restart:    spec.Restart,
		Labels:     domain.ContainerLabels(spec, fingerprint),
	}

	created, err := s.engine.CreateContainer(ctx, config)
	if err != nil {
		return nil, failure(name, domain.PhaseCreate, domain.ErrStart, err)
	}
	log.Info().
		Str(zerowrap.FieldEntityID, created.ID).
		Bool("privileged", spec.Privileged).
		Msg("sandbox container created")

	if len(spec.Networks) > 1 {
		for _, network := range spec.Networks[1:] {
			if err := s.engine.ConnectContainerToNetwork(ctx, created.ID, network); err != nil {
				return nil, s.abortCreated(ctx, name, domain.PhaseCreate, created.ID, err)
			}
		}
	}

	running, err := s.start(ctx, created.ID, spec.ReadinessURL)
	if err != nil {
		return nil, s.abortCreated(ctx, name, domain.PhaseStart, created.ID, err)
	}
	return running, nil
}

// startExisting starts a matching stopped container. The container is left in
// place on failure since it was not created by this reconciliation.
func (s *Service) startExisting(ctx context.Context, spec *domain.ServiceSpec, containerID string) (*domain.Container, error) {
	log := zerowrap.FromCtx(ctx)
	log.Info().Str(zerowrap.FieldEntityID, containerID).Msg("starting stopped sandbox")
	return s.start(ctx, containerID, spec.ReadinessURL)
}

// abortCreated removes a container created by this reconciliation and returns
// the classified failure, with any cleanup error attached.
func (s *Service) abortCreated(ctx context.Context, name string, phase domain.Phase, containerID string, cause error) error {
	log := zerowrap.FromCtx(ctx)
	if cerr := s.cleanupFailedContainer(ctx, containerID); cerr != nil {
		log.Warn().Err(cerr).Str(zerowrap.FieldEntityID, containerID).Msg("failed to clean up sandbox container")
		return failure(name, phase, domain.ErrStart, errors.Join(cause, cerr))
	}
	log.Info().Str(zerowrap.FieldEntityID, containerID).Msg("removed sandbox container after failure")
	return failure(name, phase, domain.ErrStart, cause)
}

// failure classifies err for phase. Deadline expiry always maps to ErrTimeout
// and cancellation to ErrCanceled, whatever the phase.
func failure(name string, phase domain.Phase, fallback, err error) error {
	var re *domain.ReconcileError
	if errors.As(err, &re) {
		return re
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrTimeout):
		return &domain.ReconcileError{Sandbox: name, Phase: phase, Kind: domain.ErrTimeout, Err: err}
	case errors.Is(err, context.Canceled):
		return &domain.ReconcileError{Sandbox: name, Phase: phase, Kind: domain.ErrCanceled, Err: err}
	}
	return domain.NewReconcileError(name, phase, fallback, err)
}

// lockKind classifies a lock failure. Contention is a timeout; anything else
// means the lock store itself is unusable.
func lockKind(err error) error {
	if errors.Is(err, domain.ErrLockHeld) {
		return domain.ErrTimeout
	}
	return domain.ErrDependencyUnavailable
}

func sandboxName(spec *domain.ServiceSpec) string {
	switch {
	case spec == nil:
		return ""
	case spec.ContainerName != "":
		return spec.ContainerName
	}
	return spec.Name
}
