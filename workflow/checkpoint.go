package workflow

import (
	"encoding/json"
	"time"

	"github.com/Aparnap2/internal-flow-ops/id"
)

// StartMarker is the pseudo-step recorded by the initial checkpoint, saved
// before the entry step executes.
const StartMarker = "__start__"

// Checkpoint captures the state bag after one step, plus where execution
// goes next. Resuming a run means loading the latest checkpoint and
// continuing at Next.
type Checkpoint struct {
	ID        id.CheckpointID `json:"id"`
	RunID     id.RunID        `json:"run_id"`
	Seq       int64           `json:"seq"`
	Step      string          `json:"step"`
	Next      string          `json:"next"`
	State     json.RawMessage `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

// DecodeState unpacks the checkpointed state bag.
func (c *Checkpoint) DecodeState() (State, error) {
	var st State
	if err := json.Unmarshal(c.State, &st); err != nil {
		return nil, err
	}
	if st == nil {
		st = State{}
	}
	return st, nil
}
