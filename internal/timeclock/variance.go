package timeclock

import (
	"fmt"
	"time"

	"prep-service/internal/model"
	"prep-service/internal/timefmt"
)

// Thresholds in minutes. SlightDelay is the largest delay still classed as slight.
// EarlyWarning > 0 flags arrivals more than that many minutes ahead; they stay on time.
type Thresholds struct {
	SlightDelay  int
	EarlyWarning int
}

func DefaultThresholds() Thresholds {
	return Thresholds{SlightDelay: 10}
}

// ComputeVariance returns nil unless both times are known.
func ComputeVariance(scheduled, actual *time.Time, th Thresholds) *model.Variance {
	if scheduled == nil || actual == nil {
		return nil
	}
	slight := th.SlightDelay
	if slight < 0 {
		slight = 0
	}

	minutes := timefmt.MinutesBetween(*scheduled, *actual)
	v := &model.Variance{Minutes: minutes}
	switch {
	case minutes <= 0:
		v.Status = model.VarianceOnTime
		v.Early = th.EarlyWarning > 0 && -minutes > th.EarlyWarning
	case minutes <= slight:
		v.Status = model.VarianceSlightDelay
	default:
		v.Status = model.VarianceLate
	}
	v.Label = varianceLabel(*v)
	return v
}

func varianceLabel(v model.Variance) string {
	switch v.Status {
	case model.VarianceSlightDelay:
		return fmt.Sprintf("Slight delay (+%d min)", v.Minutes)
	case model.VarianceLate:
		return fmt.Sprintf("Late (+%d min)", v.Minutes)
	default:
		if v.Early {
			return fmt.Sprintf("On time (%d min early)", -v.Minutes)
		}
		return "On time"
	}
}
