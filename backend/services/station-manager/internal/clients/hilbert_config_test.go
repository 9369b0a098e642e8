package clients

import (
	"errors"
	"testing"
)

const sampleConfig = `
Version: 0.9.0
Stations:
  station_z:
    name: Zebra
    description: Last in the alphabet, first in the file
    type: standalone
    client_settings:
      hilbert_station_default_application: kiosk
    compatible_applications: [kiosk, slideshow]
  admin_server:
    hidden: true
    client_settings:
      hilbert_station_default_application: ''
  station_a:
    type: standalone
    client_settings:
      hilbert_station_default_application: slideshow
    compatible_applications:
      - slideshow
`

func TestParseHilbertConfigPreservesOrder(t *testing.T) {
	configs, err := ParseHilbertConfig([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("ParseHilbertConfig: %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("expected 2 visible stations, got %d", len(configs))
	}

	z, a := configs[0], configs[1]
	if z.ID != "station_z" || z.Name != "Zebra" || z.DefaultApp != "kiosk" || len(z.CompatibleApps) != 2 {
		t.Errorf("unexpected first station %+v", z)
	}
	if a.ID != "station_a" || a.Name != "station_a" || a.DefaultApp != "slideshow" {
		t.Errorf("unexpected second station %+v", a)
	}
}

func TestParseHilbertConfigJSON(t *testing.T) {
	data := []byte(`{"Stations": {"b": {"name": "B", "compatible_applications": ["x"]}, "a": {"name": "A"}}}`)
	configs, err := ParseHilbertConfig(data)
	if err != nil {
		t.Fatalf("ParseHilbertConfig: %v", err)
	}
	if len(configs) != 2 || configs[0].ID != "b" || configs[1].ID != "a" {
		t.Errorf("unexpected configs %+v", configs)
	}
}

func TestParseHilbertConfigErrors(t *testing.T) {
	for _, input := range []string{"", "Version: 1\n", "Stations: [a, b]\n"} {
		if _, err := ParseHilbertConfig([]byte(input)); !errors.Is(err, ErrEmptyConfig) {
			t.Errorf("input %q: expected ErrEmptyConfig, got %v", input, err)
		}
	}

	if _, err := ParseHilbertConfig([]byte("Stations: {a: [unclosed")); err == nil {
		t.Error("expected decode error")
	}
}
