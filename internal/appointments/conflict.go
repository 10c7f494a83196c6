package appointments

import "time"

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow builds the window starting at start and lasting minutes.
func NewWindow(start time.Time, minutes int) Window {
	return Window{Start: start, End: start.Add(time.Duration(minutes) * time.Minute)}
}

// Overlaps reports whether two windows share any instant. Windows that only
// touch at a boundary do not overlap.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// FindConflict returns the first existing appointment whose window overlaps
// the candidate. Cancelled appointments and the candidate itself are ignored.
func FindConflict(candidate Appointment, existing []Appointment) (Appointment, bool) {
	window := candidate.Window()
	for _, other := range existing {
		if candidate.ID != 0 && other.ID == candidate.ID {
			continue
		}
		if other.Status == StatusCancelled {
			continue
		}
		if window.Overlaps(other.Window()) {
			return other, true
		}
	}
	return Appointment{}, false
}
