package schedule

// Overlaps reports whether two weekly rules double-book a time window.
// spanA and spanB are the category slot widths in minutes; a zero span
// means the category is exempt and short-circuits the check. Two rules
// conflict iff they share at least one day of week and their
// [start, start+span) windows intersect, span being the larger of the two.
func Overlaps(daysA []int, timeA string, spanA int, daysB []int, timeB string, spanB int) (bool, error) {
	if spanA == 0 || spanB == 0 {
		return false, nil
	}
	if !shareDayOfWeek(daysA, daysB) {
		return false, nil
	}

	startA, err := MinutesOfDay(timeA)
	if err != nil {
		return false, err
	}
	startB, err := MinutesOfDay(timeB)
	if err != nil {
		return false, err
	}

	span := spanA
	if spanB > span {
		span = spanB
	}
	return startA < startB+span && startB < startA+span, nil
}

func shareDayOfWeek(a, b []int) bool {
	for _, da := range a {
		for _, db := range b {
			if da == db {
				return true
			}
		}
	}
	return false
}
