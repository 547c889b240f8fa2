package availability

import "time"

// FreeSlots returns the bookable slots for one working-hours window.
//
// The occupied set is the merged union of committed local appointments
// (effective intervals, buffers included) and external-calendar busy blocks.
// Slot candidates are laid out on a step grid from the window start; a
// candidate partially covered by occupied time is dropped entirely, never
// shortened. Results are in chronological order.
//
// The computation is stateless and recomputed per call; the authoritative
// conflict check still happens at commit time in the booking path.
func FreeSlots(window Interval, duration, step time.Duration, occupied []Interval) []Interval {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !window.IsValid() || window.Duration() < duration {
		return nil
	}

	free := Subtract(window, Merge(occupied))

	var slots []Interval
	for t := window.Start; !t.Add(duration).After(window.End); t = t.Add(step) {
		candidate := Interval{Start: t, End: t.Add(duration)}
		for _, f := range free {
			if f.Contains(candidate) {
				slots = append(slots, candidate)
				break
			}
		}
	}
	return slots
}

// FreeSlotsAfter is FreeSlots with candidates starting before now removed,
// for offering slots to bookers in real time.
func FreeSlotsAfter(window Interval, duration, step time.Duration, occupied []Interval, now time.Time) []Interval {
	slots := FreeSlots(window, duration, step, occupied)
	cut := 0
	for cut < len(slots) && slots[cut].Start.Before(now) {
		cut++
	}
	return slots[cut:]
}
