package billing

import (
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/VodScribe/app/models"
)

// Plan is a tier with its fixed credit allotment per period.
type Plan struct {
	Name    string
	Credits int
}

var (
	FreePlan       = Plan{Name: models.PlanFree, Credits: 1}
	StarterPlan    = Plan{Name: models.PlanStarter, Credits: 2}
	QuickClipsPlan = Plan{Name: models.PlanQuickClips, Credits: 8}
	CreatorProPlan = Plan{Name: models.PlanCreatorPro, Credits: 50}
)

const (
	monthlyPeriod = 30 * 24 * time.Hour
	yearlyPeriod  = 365 * 24 * time.Hour
)

// ResolvePlanByAmount picks the highest tier whose threshold amount reaches.
func ResolvePlanByAmount(amount float64) Plan {
	switch {
	case amount >= 40:
		return CreatorProPlan
	case amount >= 10:
		return QuickClipsPlan
	default:
		return StarterPlan
	}
}

// ResolvePlanByTierName matches tier names case-insensitively, first rule wins.
func ResolvePlanByTierName(tierName string) Plan {
	name := strings.ToLower(tierName)
	switch {
	case strings.Contains(name, "pro"), strings.Contains(name, "creator"):
		return CreatorProPlan
	case strings.Contains(name, "quick"), strings.Contains(name, "clips"):
		return QuickClipsPlan
	default:
		return StarterPlan
	}
}

// ParseAmount parses a decimal amount as providers send it ("12.50").
func ParseAmount(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, newError(ErrInvalidPayload, "Invalid amount: "+raw, err)
	}
	if v < 0 {
		return 0, newError(ErrInvalidPayload, "Invalid amount: "+raw, nil)
	}
	return v, nil
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// periodFor returns the length of one billing period for a Ko-fi recurrence.
func periodFor(recurrence string) time.Duration {
	if strings.EqualFold(strings.TrimSpace(recurrence), "Yearly") {
		return yearlyPeriod
	}
	return monthlyPeriod
}
