package report

import (
	"errors"

	"parkir-status-backend/internal/model"
)

var (
	// ErrInvalidInput is the sentinel for every rejected report body.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstream is returned when the store fails or the transaction is rolled back.
	ErrUpstream = errors.New("upstream failure")
)

// RequiredFields lists the body fields a report must carry.
var RequiredFields = []string{"lokasiId", "status"}

// InputError is a validation failure with the hints clients receive.
type InputError struct {
	Message        string
	RequiredFields []string
	AllowedStatus  []string
}

func (e *InputError) Error() string { return e.Message }

func (e *InputError) Unwrap() error { return ErrInvalidInput }

func missingFields() *InputError {
	return &InputError{Message: "Data tidak lengkap", RequiredFields: RequiredFields}
}

func invalidStatus() *InputError {
	return &InputError{Message: "Status tidak valid", AllowedStatus: model.AllowedStatusStrings()}
}
