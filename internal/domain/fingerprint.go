package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// fingerprintInput is the canonical form hashed into the spec fingerprint.
// encoding/json sorts map keys, so map iteration order does not leak in.
type fingerprintInput struct {
	ContainerName string            `json:"container_name"`
	ImageRef      string            `json:"image_ref"`
	ImageID       string            `json:"image_id"`
	Privileged    bool              `json:"privileged"`
	Environment   map[string]string `json:"environment"`
	Mounts        []Mount           `json:"mounts"`
	Ports         []PortMapping     `json:"ports"`
	Networks      []string          `json:"networks"`
	Restart       RestartPolicy     `json:"restart"`
	WorkingDir    string            `json:"working_dir"`
	Command       []string          `json:"command"`
	Labels        map[string]string `json:"labels"`
}

// Fingerprint hashes everything that, when changed, requires the container to be
// replaced. imageID pins the content the image reference resolved to.
func Fingerprint(spec *ServiceSpec, imageID string) string {
	in := fingerprintInput{
		ContainerName: spec.ContainerName,
		ImageRef:      spec.ImageRef(),
		ImageID:       imageID,
		Privileged:    spec.Privileged,
		Environment:   spec.Environment,
		Mounts:        spec.Mounts,
		Ports:         spec.Ports,
		Networks:      spec.Networks,
		Restart:       spec.Restart,
		WorkingDir:    spec.WorkingDir,
		Command:       spec.Command,
		Labels:        spec.Labels,
	}
	if in.Environment == nil {
		in.Environment = map[string]string{}
	}
	if in.Labels == nil {
		in.Labels = map[string]string{}
	}

	// Marshal cannot fail: every field is a plain value type.
	data, _ := json.Marshal(in)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
