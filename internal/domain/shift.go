package domain

// ShiftWindow is one of the four fixed hour ranges partitioning a day.
// The partition is a core invariant shared by the grid and the
// aggregator; it must never drift between the two.
type ShiftWindow string

const (
	// Shift3Cont is the tail of the previous night shift (hours 1-7).
	Shift3Cont ShiftWindow = "shift3_cont"
	Shift1     ShiftWindow = "shift1"
	Shift2     ShiftWindow = "shift2"
	Shift3     ShiftWindow = "shift3"
)

// AllShiftWindows lists windows in day order.
var AllShiftWindows = []ShiftWindow{Shift3Cont, Shift1, Shift2, Shift3}

// shiftHours maps each window to its 1-based hour range (inclusive).
var shiftHours = map[ShiftWindow][2]int{
	Shift3Cont: {1, 7},
	Shift1:     {8, 15},
	Shift2:     {16, 22},
	Shift3:     {23, 24},
}

// Hours returns the 1-based hours belonging to the window, in order.
func (w ShiftWindow) Hours() []int {
	r, ok := shiftHours[w]
	if !ok {
		return nil
	}
	hours := make([]int, 0, r[1]-r[0]+1)
	for h := r[0]; h <= r[1]; h++ {
		hours = append(hours, h)
	}
	return hours
}

// Contains reports whether the 1-based hour falls inside the window.
func (w ShiftWindow) Contains(hour int) bool {
	r, ok := shiftHours[w]
	return ok && hour >= r[0] && hour <= r[1]
}

// WindowForHour returns the window a 1-based hour belongs to.
func WindowForHour(hour int) ShiftWindow {
	for _, w := range AllShiftWindows {
		if w.Contains(hour) {
			return w
		}
	}
	return ""
}
