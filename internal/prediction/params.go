package prediction

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"parkir-status-backend/internal/model"
)

var (
	// ErrInvalidParameters is returned when hour or day is malformed or out of range.
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrPredictionFailed covers every scorer failure. The cause is only logged.
	ErrPredictionFailed = errors.New("prediction failed")
)

// ParamsDetail describes the accepted parameter ranges to clients.
const ParamsDetail = "Hour: 0-23, Day: 0-6 (0=Sunday)"

var dayNames = [7]string{"Minggu", "Senin", "Selasa", "Rabu", "Kamis", "Jumat", "Sabtu"}

// DayName returns the Indonesian weekday name for day 0 (Sunday) through 6.
func DayName(day int) string {
	if day < 0 || day >= len(dayNames) {
		return ""
	}
	return dayNames[day]
}

// Request is a validated prediction request. LocationID is carried through
// but does not select a model.
type Request struct {
	LocationID int64
	Hour       int
	Day        int
}

// Result is the outcome of a successful prediction.
type Result struct {
	Status    model.Status
	Hour      int
	Day       int
	DayName   string
	Timestamp time.Time
}

// ParseParams validates the raw jam and hari query values. Absent values
// default to the hour and weekday of now.
func ParseParams(locationID int64, jam, hari string, now time.Time) (Request, error) {
	hour, err := intOrDefault(jam, now.Hour())
	if err != nil {
		return Request{}, err
	}
	day, err := intOrDefault(hari, int(now.Weekday()))
	if err != nil {
		return Request{}, err
	}
	if hour < 0 || hour > 23 || day < 0 || day > 6 {
		return Request{}, ErrInvalidParameters
	}
	return Request{LocationID: locationID, Hour: hour, Day: day}, nil
}

func intOrDefault(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ErrInvalidParameters
	}
	return n, nil
}
