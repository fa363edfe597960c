package model

import (
	"fmt"
)

// FunnelQuery aggregates form step progression over a date range.
// Steps are the ordered step names of the enrollment form.
type FunnelQuery struct {
	InstanceID int64    `json:"instance_id"`
	From       string   `json:"from"`
	To         string   `json:"to"`
	Timezone   string   `json:"timezone"`
	Steps      []string `json:"steps"`
}

func (q *FunnelQuery) Validate() error {
	if q.InstanceID == 0 {
		return fmt.Errorf("invalid instance id")
	}
	if len(q.Steps) == 0 {
		return fmt.Errorf("no funnel steps given")
	}
	if q.From == "" || q.To == "" {
		return fmt.Errorf("missing date range")
	}
	return nil
}

// FunnelStepResult reports one step. DropOffRate is the percentage of
// visitors who entered this step but not the next, floored at 0 for
// the final step. AvgSecondsOnStep is the mean delta to the next step
// touch across visitors who progressed past both.
type FunnelStepResult struct {
	Step             string  `json:"step"`
	Entered          int64   `json:"entered"`
	DropOffRate      float64 `json:"drop_off_rate"`
	AvgSecondsOnStep float64 `json:"avg_seconds_on_step"`
}

type FunnelResult struct {
	Steps []FunnelStepResult `json:"steps"`
}
