package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the run milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageDiscoveryDone Stage = "DISCOVERY_DONE"
	StagePageDone      Stage = "PAGE_DONE"
	StagePageError     Stage = "PAGE_ERROR"
	StageSinkDone      Stage = "SINK_DONE"
	StageSinkError     Stage = "SINK_ERROR"
	StageRunDone       Stage = "RUN_DONE"
	StageRunError      Stage = "RUN_ERROR"
)

// Terminal reports whether s ends a run.
func (s Stage) Terminal() bool {
	return s == StageRunDone || s == StageRunError
}

// Event captures a single step of a collection run.
type Event struct {
	// RunID identifies the run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Region scopes page events to the region the beach was discovered under.
	Region string
	// URL is the page for page events.
	URL string
	// Sink names the sink for sink events; Destination is where it wrote.
	Sink        string
	Destination string
	// Count is the number of beaches for DISCOVERY_DONE and rows for RUN_DONE.
	Count int64
	// Fallbacks counts fields on the page that fell back to their selector.
	Fallbacks int64
	// Dur captures page latency or total run time.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageDiscoveryDone, StageRunDone, StageRunError:
	case StagePageDone, StagePageError:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	case StageSinkDone, StageSinkError:
		if e.Sink == "" {
			return fmt.Errorf("%s requires sink", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Count < 0 || e.Fallbacks < 0 {
		return errors.New("counts must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ParseRunID accepts the textual run ID handed out by the id generator.
func ParseRunID(s string) ([16]byte, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return [16]byte{}, fmt.Errorf("parse run id %q: %w", s, err)
	}
	return UUIDToBytes(id), nil
}
