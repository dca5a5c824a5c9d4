// Package overrides applies manual corrections to generated forecast events.
package overrides

import (
	"sort"

	"cashflow-forecast-service/internal/models"
)

// Resolution is the outcome of one resolution pass
type Resolution struct {
	Events []models.ForecastEvent
	// Applied lists overrides that matched an event, plus every add_occurrence.
	Applied []models.Override
	// Unmatched lists overrides whose target occurrence was not generated.
	Unmatched []models.Override
}

// eventIndex maps an occurrence key to its position in the working slice
type eventIndex map[models.EventKey]int

func newEventIndex(events []models.ForecastEvent) eventIndex {
	idx := make(eventIndex, len(events))
	for i, e := range events {
		if _, exists := idx[e.Key()]; !exists {
			idx[e.Key()] = i
		}
	}
	return idx
}

// Apply resolves overrides against events and returns the final events sorted
// ascending. The input slices are not modified. With no overrides the events
// are returned unchanged.
func Apply(events []models.ForecastEvent, overrides []models.Override) []models.ForecastEvent {
	return Resolve(events, overrides).Events
}

// Resolve is Apply with a record of which overrides took effect.
//
// Overrides are matched on (vendor group, calendar date) of the generated
// event, exact match only. Each generated occurrence is resolved at most once;
// when several overrides target it, the most recently created one wins and
// the rest are reported as unmatched.
func Resolve(events []models.ForecastEvent, overrides []models.Override) Resolution {
	out := make([]models.ForecastEvent, len(events))
	copy(out, events)
	if len(overrides) == 0 {
		return Resolution{Events: out}
	}

	ordered := make([]models.Override, len(overrides))
	copy(ordered, overrides)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})

	var res Resolution
	index := newEventIndex(out)
	resolved := make(map[int]bool)
	dropped := make(map[int]bool)

	for _, o := range ordered {
		if o.Type == models.OverrideAdd {
			out = append(out, addedEvent(o))
			res.Applied = append(res.Applied, o)
			continue
		}

		i, ok := index[o.Key()]
		if !ok || resolved[i] {
			res.Unmatched = append(res.Unmatched, o)
			continue
		}
		resolved[i] = true

		switch o.Type {
		case models.OverrideAmountChange:
			out[i] = replaced(out[i], o)
			out[i].Amount = o.Amount
		case models.OverrideDateShift:
			if o.NewDate == nil || o.NewDate.IsZero() {
				resolved[i] = false
				res.Unmatched = append(res.Unmatched, o)
				continue
			}
			out[i] = replaced(out[i], o)
			out[i].Date = models.DateOnly(*o.NewDate)
		case models.OverrideSkip:
			dropped[i] = true
		default:
			resolved[i] = false
			res.Unmatched = append(res.Unmatched, o)
			continue
		}
		res.Applied = append(res.Applied, o)
	}

	res.Events = make([]models.ForecastEvent, 0, len(out)-len(dropped))
	for i, e := range out {
		if !dropped[i] {
			res.Events = append(res.Events, e)
		}
	}
	models.SortEvents(res.Events)
	return res
}

func replaced(e models.ForecastEvent, o models.Override) models.ForecastEvent {
	e.EventType = models.EventOverride
	e.Source = models.SourceManualOverride
	e.OverrideID = o.ID
	e.Note = o.Reason
	return e
}

func addedEvent(o models.Override) models.ForecastEvent {
	return models.ForecastEvent{
		Date:        models.DateOnly(o.OverrideDate),
		VendorGroup: o.VendorGroup,
		Amount:      o.Amount,
		EventType:   models.EventOneTime,
		Frequency:   models.FrequencyOneTime,
		Confidence:  1.0,
		Source:      models.SourceManualEntry,
		OverrideID:  o.ID,
		Note:        o.Reason,
	}
}
