package audit

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-melcloud/internal/coordinator"
)

const recordTimeout = 5 * time.Second

// Logger is the logging interface used by the recorder.
type Logger interface {
	Error(msg string, args ...any)
}

// Recorder turns completed coordinator writes into command log rows.
type Recorder struct {
	repo   Repository
	source string
	logger Logger
}

// NewRecorder creates a recorder. source is stored with every row, e.g.
// the bridge ID.
func NewRecorder(repo Repository, source string, logger Logger) *Recorder {
	return &Recorder{repo: repo, source: source, logger: logger}
}

// Record stores rec. Failures are logged, never returned.
func (r *Recorder) Record(rec coordinator.WriteRecord) {
	cmd := &Command{
		DeviceID:       rec.Device.DeviceID,
		BuildingID:     rec.Device.BuildingID,
		Characteristic: string(rec.Kind),
		Value:          rec.Value,
		EffectiveFlags: int(rec.Flags),
		Outcome:        OutcomeOK,
		Source:         r.source,
		CreatedAt:      rec.At,
	}
	if rec.Err != nil {
		cmd.Outcome = OutcomeFailed
		cmd.Error = rec.Err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := r.repo.Create(ctx, cmd); err != nil && r.logger != nil {
		r.logger.Error("failed to record command", "device_id", cmd.DeviceID, "error", err)
	}
}
