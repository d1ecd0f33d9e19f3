package sandbox

import (
	"context"
	"errors"

	"github.com/bnema/zerowrap"

	"github.com/bnema/sandboxer/internal/domain"
)

// publish sends an event. Publishing failures are logged and never fail the
// calling operation.
func (s *Service) publish(ctx context.Context, eventType domain.EventType, payload any) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(eventType, payload); err != nil {
		log := zerowrap.FromCtx(ctx)
		log.Warn().Err(err).Str(zerowrap.FieldEvent, string(eventType)).Msg("failed to publish event")
	}
}

// publishReconciled announces the outcome and, for new containers, the
// security-sensitive grants they carry.
func (s *Service) publishReconciled(ctx context.Context, spec *domain.ServiceSpec, handle *domain.SandboxHandle) {
	eventType := domain.EventSandboxReconciled
	if handle.Action == domain.ActionReplaced {
		eventType = domain.EventSandboxReplaced
	}
	s.publish(ctx, eventType, domain.SandboxEventPayload{
		Sandbox:     handle.Name,
		ContainerID: handle.ContainerID,
		Image:       handle.Image,
		Action:      handle.Action,
	})

	if handle.Action != domain.ActionCreated && handle.Action != domain.ActionReplaced {
		return
	}
	if spec.Privileged {
		s.publish(ctx, domain.EventPrivilegedGranted, domain.SecurityEventPayload{
			Sandbox:     handle.Name,
			ContainerID: handle.ContainerID,
			Detail:      "privileged mode",
		})
	}
	for _, m := range spec.Mounts {
		if m.Type == domain.MountTypeBind && domain.IsEngineSocketPath(m.Source) {
			s.publish(ctx, domain.EventEngineSocketBound, domain.SecurityEventPayload{
				Sandbox:     handle.Name,
				ContainerID: handle.ContainerID,
				Detail:      m.String(),
			})
		}
	}
}

func (s *Service) publishFailed(ctx context.Context, name string, err error) {
	payload := domain.SandboxEventPayload{
		Sandbox: name,
		Error:   err.Error(),
	}
	var re *domain.ReconcileError
	if errors.As(err, &re) {
		payload.Phase = re.Phase
	}
	s.publish(ctx, domain.EventSandboxFailed, payload)
}
