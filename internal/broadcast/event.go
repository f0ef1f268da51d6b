package broadcast

import (
	"encoding/json"

	"parkir-status-backend/internal/model"
)

// Kind names a live event on the wire.
type Kind string

const (
	KindUpdate Kind = "parkir-update"
	KindError  Kind = "parkir-error"
)

// ErrorCodeDB is sent when the post-commit refetch of the listing fails.
const ErrorCodeDB = "DB_ERROR"

// Event is what every subscriber receives.
type Event struct {
	Kind Kind `json:"event"`
	Data any  `json:"data"`
}

// UpdatePayload carries the full current listing, never a diff.
type UpdatePayload struct {
	Status  string           `json:"status"`
	Data    []model.Location `json:"data"`
	Message string           `json:"message"`
}

// ErrorPayload tells subscribers their view may be stale.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func updateEvent(locations []model.Location) Event {
	return Event{Kind: KindUpdate, Data: UpdatePayload{
		Status:  "success",
		Data:    locations,
		Message: "Data parkir diperbarui!",
	}}
}

func dbErrorEvent() Event {
	return Event{Kind: KindError, Data: ErrorPayload{
		Code:    ErrorCodeDB,
		Message: "Gagal mengambil data parkir",
	}}
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}
