// Package deadline derives step and instance due dates from priority and creation time.
package deadline

import (
	"time"

	"github.com/dukex/licensehub/pkg/models"
)

const day = 24 * time.Hour

// DaysPerStep is the base allotment of calendar days per step for each priority.
var DaysPerStep = map[models.Priority]int{
	models.PriorityUrgent: 1,
	models.PriorityHigh:   2,
	models.PriorityMedium: 4,
	models.PriorityLow:    7,
}

// Schedule holds the due dates computed for a new instance.
type Schedule struct {
	Steps []time.Time // index i is the due date of step i+1
	Due   time.Time
}

// StepDays returns the days allotted to step under priority. A positive
// DurationDays on the step overrides the priority allotment.
func StepDays(priority models.Priority, step models.StepDefinition) int {
	if step.DurationDays > 0 {
		return step.DurationDays
	}

	if days, ok := DaysPerStep[priority]; ok {
		return days
	}

	return DaysPerStep[models.PriorityMedium]
}

// StepDueDate is createdAt plus the days allotted to every step up to and
// including the one being stamped.
func StepDueDate(createdAt time.Time, cumulativeDays int) time.Time {
	return createdAt.Add(time.Duration(cumulativeDays) * day)
}

// Plan stamps every step of tpl and the overall instance due date, which is
// creation time plus the sum of all step durations.
func Plan(createdAt time.Time, priority models.Priority, tpl *models.WorkflowTemplate) Schedule {
	schedule := Schedule{Steps: make([]time.Time, 0, len(tpl.Steps))}

	cumulative := 0
	for _, step := range tpl.Steps {
		cumulative += StepDays(priority, step)
		schedule.Steps = append(schedule.Steps, StepDueDate(createdAt, cumulative))
	}

	schedule.Due = StepDueDate(createdAt, cumulative)

	return schedule
}
