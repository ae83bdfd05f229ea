package domain

// HoursPerDay is the number of hour slots in one HourlyRecord.
const HoursPerDay = 24

// CellValue is the tagged variant a grid cell holds: either a numeric
// reading or raw text for categorical parameters. The zero value is
// never stored; an absent cell is a nil *CellValue, which means
// "not yet entered", not zero.
type CellValue struct {
	Num     float64
	Text    string
	Numeric bool
}

// NumberCell builds a numeric cell value.
func NumberCell(v float64) *CellValue {
	return &CellValue{Num: v, Numeric: true}
}

// TextCell builds a categorical text cell value.
func TextCell(s string) *CellValue {
	return &CellValue{Text: s}
}

// Raw returns the value in the shape the record store holds it.
func (c *CellValue) Raw() any {
	if c == nil {
		return nil
	}
	if c.Numeric {
		return c.Num
	}
	return c.Text
}

// Equal compares two cells, treating nil as absent.
func (c *CellValue) Equal(o *CellValue) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.Numeric != o.Numeric {
		return false
	}
	if c.Numeric {
		return c.Num == o.Num
	}
	return c.Text == o.Text
}

// HourlyRecord is one row per (parameter, day): 24 independently
// nullable hour slots plus per-slot editor attribution. At most one
// record exists per (parameter id, date) pair.
type HourlyRecord struct {
	ID          string
	ParameterID string
	// Date is the calendar day in "2006-01-02" form, no time component.
	Date string
	// PlantUnit tags which production unit the row belongs to.
	PlantUnit string
	// Hours[i] holds the value for 1-based hour i+1.
	Hours [HoursPerDay]*CellValue
	// Editors[i] attributes the last edit of hour i+1. A clear stamps
	// the editor too: clearing is itself an attributable action.
	Editors [HoursPerDay]*string
}

// Hour returns the cell for a 1-based hour, nil when absent or out of
// range.
func (r *HourlyRecord) Hour(hour int) *CellValue {
	if hour < 1 || hour > HoursPerDay {
		return nil
	}
	return r.Hours[hour-1]
}

// Editor returns the attribution for a 1-based hour.
func (r *HourlyRecord) Editor(hour int) string {
	if hour < 1 || hour > HoursPerDay {
		return ""
	}
	if e := r.Editors[hour-1]; e != nil {
		return *e
	}
	return ""
}

// SetHour stores a value (nil clears) and stamps the editor for a
// 1-based hour.
func (r *HourlyRecord) SetHour(hour int, value *CellValue, editor string) {
	if hour < 1 || hour > HoursPerDay {
		return
	}
	r.Hours[hour-1] = value
	e := editor
	r.Editors[hour-1] = &e
}

// HasDataInWindow reports whether any hour slot inside the window still
// holds a value.
func (r *HourlyRecord) HasDataInWindow(w ShiftWindow) bool {
	for _, h := range w.Hours() {
		if r.Hours[h-1] != nil {
			return true
		}
	}
	return false
}

// Empty reports whether no hour slot in any shift window holds data.
// A record is eligible for removal only when this is true.
func (r *HourlyRecord) Empty() bool {
	for _, w := range AllShiftWindows {
		if r.HasDataInWindow(w) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy safe to hand to callers.
func (r *HourlyRecord) Clone() *HourlyRecord {
	out := &HourlyRecord{
		ID:          r.ID,
		ParameterID: r.ParameterID,
		Date:        r.Date,
		PlantUnit:   r.PlantUnit,
	}
	for i := 0; i < HoursPerDay; i++ {
		if c := r.Hours[i]; c != nil {
			cc := *c
			out.Hours[i] = &cc
		}
		if e := r.Editors[i]; e != nil {
			ee := *e
			out.Editors[i] = &ee
		}
	}
	return out
}
