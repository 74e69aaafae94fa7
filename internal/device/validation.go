package device

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	maxNameLength = 100
	maxSlugLength = 50

	// Caps on user-supplied payload sizes.
	maxLabels        = 50
	maxLabelValueLen = 256
	maxEndpointLen   = 1024
)

var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

var validAdapters = func() map[Adapter]struct{} {
	set := make(map[Adapter]struct{})
	for _, a := range AllAdapters() {
		set[a] = struct{}{}
	}
	return set
}()

// ValidateDevice checks everything the registry requires before a device
// is persisted, returning the first failure found. An empty slug passes;
// the registry generates one from the name.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}

	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if d.Slug != "" {
		if err := ValidateSlug(d.Slug); err != nil {
			return err
		}
	}
	if err := ValidateAdapter(d.Adapter); err != nil {
		return err
	}
	if err := ValidateEndpoint(d.Endpoint); err != nil {
		return err
	}

	if d.PollInterval < 0 {
		return fmt.Errorf("%w: poll_interval must not be negative", ErrInvalidDevice)
	}

	if len(d.Labels) > maxLabels {
		return fmt.Errorf("%w: labels exceed max keys (%d)", ErrInvalidDevice, maxLabels)
	}
	for k, v := range d.Labels {
		if len(k) > maxLabelValueLen || len(v) > maxLabelValueLen {
			return fmt.Errorf("%w: label %q too long", ErrInvalidDevice, k)
		}
	}

	if d.HealthStatus != "" {
		if err := ValidateHealthStatus(d.HealthStatus); err != nil {
			return err
		}
	}
	return nil
}

func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

func ValidateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("%w: slug cannot be empty", ErrInvalidSlug)
	}
	if len(slug) > maxSlugLength {
		return fmt.Errorf("%w: slug exceeds %d characters", ErrInvalidSlug, maxSlugLength)
	}
	if !slugRegex.MatchString(slug) {
		return fmt.Errorf("%w: slug must be lowercase alphanumeric with hyphens", ErrInvalidSlug)
	}
	return nil
}

func ValidateAdapter(adapter Adapter) error {
	if _, ok := validAdapters[adapter]; ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidAdapter, adapter)
}

// ValidateEndpoint only checks that an endpoint is plausible for storage.
// Adapter-specific validation (URL parsing, topic syntax) happens when
// the adapter connects.
func ValidateEndpoint(endpoint string) error {
	if strings.TrimSpace(endpoint) == "" {
		return fmt.Errorf("%w: endpoint cannot be empty", ErrInvalidEndpoint)
	}
	if len(endpoint) > maxEndpointLen {
		return fmt.Errorf("%w: endpoint exceeds %d characters", ErrInvalidEndpoint, maxEndpointLen)
	}
	return nil
}

func ValidateHealthStatus(status HealthStatus) error {
	switch status {
	case HealthStatusOnline, HealthStatusOffline, HealthStatusDegraded, HealthStatusUnknown:
		return nil
	}
	return fmt.Errorf("%w: invalid health status %q", ErrInvalidDevice, status)
}

// GenerateSlug derives a URL-safe slug from a display name. "Loft
// Thermostat" becomes "loft-thermostat".
func GenerateSlug(name string) string {
	lowered := strings.ToLower(name)
	lowered = strings.ReplaceAll(lowered, " ", "-")
	lowered = strings.ReplaceAll(lowered, "_", "-")

	// Drop everything that is not alphanumeric or a hyphen.
	slug := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, lowered)

	slug = strings.Trim(slug, "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	return slug
}

func GenerateID() string {
	return uuid.New().String()
}
