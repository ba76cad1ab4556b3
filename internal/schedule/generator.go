// Package schedule generates warmup ramp plans. Generation is a pure
// function of the campaign's warmup parameters and the generation date;
// it touches no external state.
package schedule

import (
	"errors"
	"math"
	"time"

	"github.com/clickmail/warmup-engine/internal/domain"
)

// ErrInvalidParameters is returned when ramp parameters fail validation.
// Nothing is generated and no state is touched.
var ErrInvalidParameters = errors.New("invalid warmup parameters")

// Params are the ramp inputs captured on the campaign when it enters
// warmup. TotalRecipients comes from the list's valid-contact count.
type Params struct {
	StartVolume      int
	IncrementPercent float64
	MaxDaily         int
	TotalRecipients  int
}

// DayPlan is one generated day before persistence assigns it an ID.
type DayPlan struct {
	DayNumber     int
	ScheduledDate string // YYYY-MM-DD
	PlannedVolume int
}

// Generate produces the day-by-day send plan for one warmup cycle.
//
// Day 1's target volume is StartVolume; each later day's target is the
// previous target times (1 + IncrementPercent/100), compounded in floating
// point off the uncapped target so the ramp stays a smooth exponential.
// Each day's planned volume is round(target) clamped to MaxDaily and to the
// recipients still unplanned. Generation stops the day the planned total
// reaches TotalRecipients; the final day carries the exact remainder.
// Dates are consecutive calendar days starting at today.
func Generate(p Params, today time.Time) ([]DayPlan, error) {
	if p.StartVolume <= 0 {
		return nil, ErrInvalidParameters
	}
	if p.MaxDaily <= 0 {
		return nil, ErrInvalidParameters
	}
	if p.IncrementPercent < 0 {
		return nil, ErrInvalidParameters
	}
	if p.TotalRecipients < 0 {
		return nil, ErrInvalidParameters
	}

	var plan []DayPlan
	target := float64(p.StartVolume)
	totalPlanned := 0
	day := 1

	for totalPlanned < p.TotalRecipients {
		volume := int(math.Round(target))
		if volume > p.MaxDaily {
			volume = p.MaxDaily
		}
		if remaining := p.TotalRecipients - totalPlanned; volume > remaining {
			volume = remaining
		}

		plan = append(plan, DayPlan{
			DayNumber:     day,
			ScheduledDate: domain.DateString(today.AddDate(0, 0, day-1)),
			PlannedVolume: volume,
		})

		totalPlanned += volume
		target *= 1 + p.IncrementPercent/100
		day++
	}

	return plan, nil
}

// TotalPlanned sums the planned volume across a plan.
func TotalPlanned(plan []DayPlan) int {
	total := 0
	for _, d := range plan {
		total += d.PlannedVolume
	}
	return total
}
