// Package queue runs pending arrow-line tasks from a store.
package queue

import (
	"encoding/json"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"

	"github.com/sells-group/arrowline/internal/arrowline"
)

// Job is the payload of an arrow-line task: the input features and the
// layer definition to apply to them.
type Job struct {
	Features *geojson.FeatureCollection `json:"features"`
	Config   arrowline.Config           `json:"config"`
}

// Validate checks that a job has features and a usable configuration.
func (j Job) Validate() error {
	if j.Features == nil {
		return eris.New("queue: job has no features")
	}
	return j.Config.Validate()
}

// Build runs the job through the arrow-line pipeline.
func (j Job) Build() (*arrowline.Layer, error) {
	if err := j.Validate(); err != nil {
		return nil, err
	}
	return arrowline.Build(j.Features, j.Config)
}

// DecodeJob parses a task payload.
func DecodeJob(payload []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(payload, &j); err != nil {
		return Job{}, eris.Wrap(err, "queue: decode job")
	}
	return j, nil
}

// EncodeJob serializes a job into a task payload.
func EncodeJob(j Job) ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, eris.Wrap(err, "queue: encode job")
	}
	return data, nil
}
