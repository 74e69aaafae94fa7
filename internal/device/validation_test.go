package device

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateDevice(t *testing.T) {
	valid := func() *Device {
		return &Device{
			Name:     "Loft Thermostat",
			Slug:     "loft-thermostat",
			Adapter:  AdapterHTTPJSON,
			Endpoint: "http://192.168.1.40/api",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Device)
		wantErr error
	}{
		{
			name:    "valid device",
			mutate:  func(*Device) {},
			wantErr: nil,
		},
		{
			name:    "nil labels ok",
			mutate:  func(d *Device) { d.Labels = nil },
			wantErr: nil,
		},
		{
			name:    "empty slug ok before generation",
			mutate:  func(d *Device) { d.Slug = "" },
			wantErr: nil,
		},
		{
			name:    "empty name",
			mutate:  func(d *Device) { d.Name = "  " },
			wantErr: ErrInvalidName,
		},
		{
			name:    "name too long",
			mutate:  func(d *Device) { d.Name = strings.Repeat("x", 101) },
			wantErr: ErrInvalidName,
		},
		{
			name:    "uppercase slug",
			mutate:  func(d *Device) { d.Slug = "Loft-Thermostat" },
			wantErr: ErrInvalidSlug,
		},
		{
			name:    "slug with spaces",
			mutate:  func(d *Device) { d.Slug = "loft thermostat" },
			wantErr: ErrInvalidSlug,
		},
		{
			name:    "unknown adapter",
			mutate:  func(d *Device) { d.Adapter = "zwave" },
			wantErr: ErrInvalidAdapter,
		},
		{
			name:    "empty endpoint",
			mutate:  func(d *Device) { d.Endpoint = "" },
			wantErr: ErrInvalidEndpoint,
		},
		{
			name:    "negative poll interval",
			mutate:  func(d *Device) { d.PollInterval = -1 },
			wantErr: ErrInvalidDevice,
		},
		{
			name:    "bad health status",
			mutate:  func(d *Device) { d.HealthStatus = "sleepy" },
			wantErr: ErrInvalidDevice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid()
			tt.mutate(d)
			err := ValidateDevice(d)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDevice() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	t.Run("nil device", func(t *testing.T) {
		if err := ValidateDevice(nil); !errors.Is(err, ErrInvalidDevice) {
			t.Errorf("ValidateDevice(nil) error = %v, want ErrInvalidDevice", err)
		}
	})
}

func TestGenerateSlug(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple name", "Loft Thermostat", "loft-thermostat"},
		{"underscores", "utility_meter_01", "utility-meter-01"},
		{"special characters", "Caffè! Machine #2", "caff-machine-2"},
		{"multiple spaces", "Hall   Heater", "hall-heater"},
		{"leading and trailing junk", "--Porch Light--", "porch-light"},
		{"already a slug", "garage-door", "garage-door"},
		{
			"truncated to max length",
			strings.Repeat("verylongname ", 10),
			"verylongname-verylongname-verylongname-verylongnam",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateSlug(tt.input)
			if got != tt.want {
				t.Errorf("GenerateSlug(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if got != "" {
				if err := ValidateSlug(got); err != nil {
					t.Errorf("generated slug %q fails validation: %v", got, err)
				}
			}
		})
	}
}

func TestGenerateID(t *testing.T) {
	a := GenerateID()
	b := GenerateID()
	if a == b {
		t.Error("GenerateID() returned duplicate values")
	}
	if len(a) != 36 {
		t.Errorf("GenerateID() length = %d, want 36 (UUID)", len(a))
	}
}
