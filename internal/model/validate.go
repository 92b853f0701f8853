package model

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	repositoryPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)
	instancePattern   = regexp.MustCompile(`^i-[a-f0-9]{8,17}$|^[a-z][a-z0-9-]{0,62}$`)
	imageTagPattern   = regexp.MustCompile(`^[a-z0-9._-]+$`)
	envKeyPattern     = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)
)

// ValidateJob checks the Input-class rules of §7: invalid repo/instance/port
// format, unknown strategy, bad env-var key. These are surfaced at submission
// and never leave a partial store row behind.
func ValidateJob(job DeploymentJob) error {
	if !repositoryPattern.MatchString(job.Repository) {
		return fmt.Errorf("%w: repository %q must match owner/name", ErrInvalidInput, job.Repository)
	}
	if job.Ref == "" {
		return fmt.Errorf("%w: ref is required", ErrInvalidInput)
	}
	if !instancePattern.MatchString(job.InstanceID) {
		return fmt.Errorf("%w: instance_id %q has invalid format", ErrInvalidInput, job.InstanceID)
	}
	if !job.Environment.Valid() {
		return fmt.Errorf("%w: environment %q is not recognized", ErrInvalidInput, job.Environment)
	}
	if !job.Strategy.Valid() {
		return fmt.Errorf("%w: strategy %q is not recognized", ErrInvalidInput, job.Strategy)
	}
	if job.Port < 1 || job.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidInput, job.Port)
	}
	for _, ev := range job.EnvVars {
		if !envKeyPattern.MatchString(ev.Key) {
			return fmt.Errorf("%w: env var key %q is invalid", ErrInvalidInput, ev.Key)
		}
	}
	return nil
}

// ValidateImageTag checks the tag grammar of §3: <=128 chars, a name and an
// optional tag joined by a single ':' separator, each part matching
// [a-z0-9._-]+. Any colon beyond that separator is rejected.
func ValidateImageTag(tag string) error {
	if len(tag) == 0 || len(tag) > 128 {
		return fmt.Errorf("%w: image tag length %d out of bounds", ErrInvalidInput, len(tag))
	}
	name, ref, hasRef := strings.Cut(tag, ":")
	if !imageTagPattern.MatchString(name) || (hasRef && !imageTagPattern.MatchString(ref)) {
		return fmt.Errorf("%w: image tag %q violates grammar", ErrInvalidInput, tag)
	}
	return nil
}

// ErrInvalidInput is the sentinel wrapped by every Input-class validation
// error; callers use errors.Is to classify without string matching.
var ErrInvalidInput = fmt.Errorf("invalid input")
