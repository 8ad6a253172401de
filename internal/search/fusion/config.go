package fusion

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/plotwise/plotwise-backend/internal/domain"
)

// Tuning carries the fusion knobs the source data does not fix. Values ship
// in configs/fusion.yaml and may be overridden per deployment.
type Tuning struct {
	// KConst is the reciprocal-rank-fusion constant: each ranked source
	// contributes 1/(rank + KConst).
	KConst float64 `yaml:"k_const"`
	// VectorTopK is how many candidates each vector branch requests.
	VectorTopK int `yaml:"vector_top_k"`
	// DefaultWeights apply when the caller supplies no proximity weights.
	DefaultWeights map[domain.POIType]float64 `yaml:"default_weights"`
}

// DefaultTuning matches configs/fusion.yaml.
func DefaultTuning() Tuning {
	return Tuning{
		KConst:     60,
		VectorTopK: 50,
		DefaultWeights: map[domain.POIType]float64{
			domain.POISchool:  0.3,
			domain.POIBusStop: 0.4,
			domain.POIShop:    0.3,
			domain.POIForest:  0.4,
			domain.POIWater:   0.2,
			domain.POIRoad:    0.5,
		},
	}
}

// LoadTuning reads a YAML tuning file, filling anything unset from the
// defaults. An empty path returns the defaults unchanged.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	if path == "" {
		return t, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("fusion: read tuning file: %w", err)
	}

	var loaded Tuning
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return Tuning{}, fmt.Errorf("fusion: parse tuning file: %w", err)
	}

	if loaded.KConst > 0 {
		t.KConst = loaded.KConst
	}
	if loaded.VectorTopK > 0 {
		t.VectorTopK = loaded.VectorTopK
	}
	if len(loaded.DefaultWeights) > 0 {
		for poiType := range loaded.DefaultWeights {
			if _, ok := domain.POIThresholds[poiType]; !ok {
				return Tuning{}, fmt.Errorf("fusion: unknown poi type %q in tuning file", poiType)
			}
		}
		t.DefaultWeights = loaded.DefaultWeights
	}
	return t, nil
}
