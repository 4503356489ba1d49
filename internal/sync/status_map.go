package sync

// DefaultStatusLabels maps the remote service's state codes to display
// labels. A configuration table: codes 4 and 5 are unused by the remote
// service and therefore absent. Lookups are total — a miss is reported to
// the caller, never raised.
func DefaultStatusLabels() map[string]string {
	return map[string]string{
		"1": "New",
		"2": "In-Progress",
		"3": "On-Hold",
		"6": "Resolved",
		"7": "Closed",
		"8": "Canceled",
	}
}

// urgencyFor translates a local priority into the remote service's
// numeric urgency code.
func urgencyFor(priority string) string {
	switch priority {
	case "critical":
		return "1"
	case "high":
		return "2"
	case "medium":
		return "3"
	default:
		return "4"
	}
}
