package clients

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"stationmgr/backend/services/station-manager/internal/models"
)

// ErrEmptyConfig is returned when the configuration has no Stations section.
var ErrEmptyConfig = errors.New("hilbert: configuration has no stations")

type hilbertStation struct {
	Name           string   `yaml:"name"`
	Description    string   `yaml:"description"`
	Type           string   `yaml:"type"`
	Hidden         bool     `yaml:"hidden"`
	CompatibleApps []string `yaml:"compatible_applications"`
	ClientSettings struct {
		DefaultApp string `yaml:"hilbert_station_default_application"`
	} `yaml:"client_settings"`
}

// ParseHilbertConfig reads the Stations mapping of a hilbert configuration (YAML or JSON)
// and returns the visible stations in document order.
func ParseHilbertConfig(data []byte) ([]models.StationConfig, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("hilbert: decode configuration: %w", err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, ErrEmptyConfig
	}

	stations := mappingValue(doc.Content[0], "Stations")
	if stations == nil || stations.Kind != yaml.MappingNode {
		return nil, ErrEmptyConfig
	}

	configs := make([]models.StationConfig, 0, len(stations.Content)/2)
	for i := 0; i+1 < len(stations.Content); i += 2 {
		id := stations.Content[i].Value

		var raw hilbertStation
		if err := stations.Content[i+1].Decode(&raw); err != nil {
			return nil, fmt.Errorf("hilbert: decode station %s: %w", id, err)
		}
		if raw.Hidden {
			continue
		}

		name := raw.Name
		if name == "" {
			name = id
		}
		configs = append(configs, models.StationConfig{
			ID:             id,
			Name:           name,
			Description:    raw.Description,
			Type:           raw.Type,
			DefaultApp:     raw.ClientSettings.DefaultApp,
			CompatibleApps: raw.CompatibleApps,
		})
	}
	return configs, nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}
