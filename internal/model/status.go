package model

import "fmt"

// Status is the occupancy level of a parking location.
type Status string

const (
	StatusEmpty Status = "kosong"
	StatusBusy  Status = "ramai"
	StatusFull  Status = "penuh"
)

// AllowedStatuses lists every valid status in wire order. The position of a
// status in this slice is also the class index produced by the scorer.
var AllowedStatuses = []Status{StatusEmpty, StatusBusy, StatusFull}

// ParseStatus converts a raw wire value into a Status.
func ParseStatus(raw string) (Status, error) {
	for _, s := range AllowedStatuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", raw)
}

// StatusFromClass maps a scorer class index onto a Status.
func StatusFromClass(class int) (Status, bool) {
	if class < 0 || class >= len(AllowedStatuses) {
		return "", false
	}
	return AllowedStatuses[class], true
}

// AllowedStatusStrings returns AllowedStatuses as plain strings, for error bodies.
func AllowedStatusStrings() []string {
	out := make([]string, len(AllowedStatuses))
	for i, s := range AllowedStatuses {
		out[i] = string(s)
	}
	return out
}
