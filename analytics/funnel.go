package analytics

import (
	"net/http"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"enrolltrack/model/model"
	"enrolltrack/model/store"
	U "enrolltrack/util"
)

// ExecuteFunnelQuery counts distinct visitors reaching each ordered
// form step within the range and derives drop-off rates and mean time
// on step. Shares the touchpoint read path with the attribution
// calculator.
func ExecuteFunnelQuery(s store.Store, query *model.FunnelQuery) (*model.FunnelResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	from, to, err := U.DateRangeIn(query.From, query.To, query.Timezone)
	if err != nil {
		return nil, errors.Wrap(err, "invalid date range")
	}

	touches, errCode := s.GetTouchpointsInRange(query.InstanceID, from, to)
	if errCode != http.StatusFound {
		log.WithField("instance_id", query.InstanceID).WithField("err_code", errCode).
			Error("Failed to read touchpoints for funnel.")
		return nil, errors.New("failed to read touchpoints in range")
	}

	stepIndex := make(map[string]int, len(query.Steps))
	for i, step := range query.Steps {
		stepIndex[step] = i
	}

	// First time each visitor touched each step. Touches arrive in
	// timestamp order, so first write wins.
	firstTouch := make([]map[string]int64, len(query.Steps))
	for i := range firstTouch {
		firstTouch[i] = make(map[string]int64)
	}
	for i := range touches {
		touch := &touches[i]
		if touch.Type != model.TouchpointTypeFormStep {
			continue
		}
		index, tracked := stepIndex[touch.StepName]
		if !tracked {
			continue
		}
		if _, seen := firstTouch[index][touch.VisitorID]; !seen {
			firstTouch[index][touch.VisitorID] = touch.Timestamp
		}
	}

	result := &model.FunnelResult{Steps: make([]model.FunnelStepResult, 0, len(query.Steps))}
	for i, step := range query.Steps {
		entered := int64(len(firstTouch[i]))
		stepResult := model.FunnelStepResult{Step: step, Entered: entered}

		if i < len(query.Steps)-1 && entered > 0 {
			next := int64(len(firstTouch[i+1]))
			dropped := entered - next
			if dropped < 0 {
				dropped = 0
			}
			stepResult.DropOffRate = U.RoundToOneDecimal(float64(dropped) / float64(entered) * 100)

			var secondsOnStep float64
			var progressed int64
			for visitorID, enteredAt := range firstTouch[i] {
				if nextAt, ok := firstTouch[i+1][visitorID]; ok && nextAt >= enteredAt {
					secondsOnStep += float64(nextAt - enteredAt)
					progressed++
				}
			}
			if progressed > 0 {
				stepResult.AvgSecondsOnStep = secondsOnStep / float64(progressed)
			}
		}

		result.Steps = append(result.Steps, stepResult)
	}
	return result, nil
}
