package run

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/ideabank/internal/config"
	"github.com/fyrsmithlabs/ideabank/internal/item"
	"github.com/fyrsmithlabs/ideabank/internal/search"
)

var (
	// ErrInvalidThreshold indicates a dedup threshold outside (0,1).
	ErrInvalidThreshold = errors.New("dedup threshold must be in (0,1)")

	// ErrInvalidTemperature indicates a temperature outside [0,1].
	ErrInvalidTemperature = errors.New("temperature must be in [0,1]")

	// ErrInvalidItemCount indicates a non-positive item count.
	ErrInvalidItemCount = errors.New("item count must be positive")
)

// Request describes one pipeline run. Zero-valued fields take the
// configured pipeline defaults.
type Request struct {
	TimeWindow     search.TimeWindow `json:"timeWindow"`
	ItemType       item.Type         `json:"itemType"`
	ItemCount      int               `json:"itemCount"`
	DedupThreshold float64           `json:"dedupThreshold"`
	Temperature    float64           `json:"temperature"`

	// temperatureSet distinguishes an explicit 0 from an unset value.
	// The HTTP layer sets it when the field was present in the body.
	TemperatureSet bool `json:"-"`
}

// ApplyDefaults fills unset fields from the pipeline configuration.
func (r *Request) ApplyDefaults(cfg config.PipelineConfig) {
	if r.ItemCount == 0 {
		r.ItemCount = cfg.ItemCount
	}
	if r.DedupThreshold == 0 {
		r.DedupThreshold = cfg.DedupThreshold
	}
	if r.Temperature == 0 && !r.TemperatureSet {
		r.Temperature = cfg.Temperature
	}
}

// Validate rejects malformed requests before any external call.
func (r *Request) Validate() error {
	if err := r.TimeWindow.Validate(); err != nil {
		return err
	}
	if _, err := item.ParseType(string(r.ItemType)); err != nil {
		return err
	}
	if r.ItemCount <= 0 {
		return fmt.Errorf("%w, got %d", ErrInvalidItemCount, r.ItemCount)
	}
	if r.DedupThreshold <= 0 || r.DedupThreshold >= 1 {
		return fmt.Errorf("%w, got %g", ErrInvalidThreshold, r.DedupThreshold)
	}
	if r.Temperature < 0 || r.Temperature > 1 {
		return fmt.Errorf("%w, got %g", ErrInvalidTemperature, r.Temperature)
	}
	return nil
}
