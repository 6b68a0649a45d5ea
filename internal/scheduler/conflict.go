package scheduler

// HasBusyConflict reports whether any busy range intersects the window. The
// busy slice is expected to be pre-padded by the caller's buffer policy.
func HasBusyConflict(busy []TimeRange, window TimeRange) bool {
	for _, r := range busy {
		if r.Overlaps(window) {
			return true
		}
	}
	return false
}

// fitsAvailability reports whether the window is fully contained in one of the
// declared available ranges. An empty declaration means the user is
// unconstrained and always fits.
func fitsAvailability(available []TimeRange, window TimeRange) bool {
	if len(available) == 0 {
		return true
	}
	for _, r := range available {
		if r.ContainsRange(window) {
			return true
		}
	}
	return false
}
