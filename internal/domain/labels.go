package domain

import "maps"

// Label keys used by sandboxer for container, volume and network metadata.
const (
	LabelManaged     = "sandboxer.managed"
	LabelProject     = "sandboxer.project"
	LabelService     = "sandboxer.service"
	LabelSpecHash    = "sandboxer.spec-hash"
	LabelPrivileged  = "sandboxer.privileged"
	LabelEngineSock  = "sandboxer.engine-socket"
	LabelCreatedBy   = "sandboxer.created-by"
	LabelImageSource = "sandboxer.image-source"

	// LabelReadinessURL is read from the manifest: when set, a started
	// sandbox is only up once this URL answers with a 2xx status.
	LabelReadinessURL = "sandboxer.readiness-url"
)

// ContainerLabels returns the labels a sandbox container is created with.
// User labels are kept; sandboxer keys always win.
func ContainerLabels(spec *ServiceSpec, fingerprint string) map[string]string {
	labels := make(map[string]string, len(spec.Labels)+7)
	maps.Copy(labels, spec.Labels)

	labels[LabelManaged] = "true"
	labels[LabelProject] = spec.Project
	labels[LabelService] = spec.Name
	labels[LabelSpecHash] = fingerprint
	labels[LabelPrivileged] = boolLabel(spec.Privileged)
	labels[LabelEngineSock] = boolLabel(spec.MountsEngineSocket())
	if spec.Build != nil {
		labels[LabelImageSource] = "build"
	} else {
		labels[LabelImageSource] = "image"
	}
	return labels
}

// ResourceLabels returns the labels for volumes and networks sandboxer creates.
func ResourceLabels(spec *ServiceSpec) map[string]string {
	return map[string]string{
		LabelManaged:   "true",
		LabelProject:   spec.Project,
		LabelCreatedBy: spec.ContainerName,
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
