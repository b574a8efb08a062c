package fetcher

import (
	"errors"
	"net/http"

	"github.com/airbusgeo/stac-fetcher/aoi"
	"github.com/airbusgeo/stac-fetcher/dispatcher"
	"github.com/airbusgeo/stac-fetcher/planner"
	"github.com/airbusgeo/stac-fetcher/resolver"
)

// Kinds of errors, as reported to the callers
const (
	KindAmbiguousResolution     = "ambiguous_resolution"
	KindNoResolutionMatch       = "no_resolution_match"
	KindInvalidAOI              = "invalid_aoi"
	KindAOITooLarge             = "aoi_too_large"
	KindInvalidTimeRange        = "invalid_time_range"
	KindNoDataFound             = "no_data_found"
	KindUnsupportedDatasetShape = "unsupported_dataset_shape"
	KindUnknownVariables        = "unknown_variables"
	KindInvalidRequest          = "invalid_request"
	KindInternal                = "internal"
)

// OutcomeSuccess is the outcome label of a successful request
const OutcomeSuccess = "success"

// ErrInvalidRequest is returned when a mandatory field of a request is missing
type ErrInvalidRequest struct {
	Reason string
}

func (e *ErrInvalidRequest) Error() string {
	return "invalid request: " + e.Reason
}

// StructuredError is the JSON representation of an error
type StructuredError struct {
	Error               string                `json:"error"`
	Kind                string                `json:"kind"`
	Message             string                `json:"message"`
	Suggestions         []resolver.Suggestion `json:"suggestions,omitempty"`
	AvailableCategories []string              `json:"available_categories,omitempty"`
	AvailableVariables  []string              `json:"available_variables,omitempty"`
	Suggestion          *planner.Suggestion   `json:"suggestion,omitempty"`
}

// ToStructured converts an error of the pipeline into its structured representation
func ToStructured(err error) StructuredError {
	s := StructuredError{Error: err.Error(), Message: err.Error(), Kind: KindInternal}

	var ambiguous *resolver.ErrAmbiguous
	var noMatch *resolver.ErrNoMatch
	var invalidAOI *aoi.ErrInvalidAOI
	var tooLarge *planner.ErrAOITooLarge
	var invalidTR *planner.ErrInvalidTimeRange
	var noData *dispatcher.ErrNoData
	var unsupported *dispatcher.ErrUnsupportedShape
	var unknownVars *dispatcher.ErrUnknownVariables
	var invalidReq *ErrInvalidRequest

	switch {
	case errors.As(err, &ambiguous):
		s.Kind, s.Message = KindAmbiguousResolution, ambiguous.Error()
		s.Suggestions = ambiguous.Suggestions
	case errors.As(err, &noMatch):
		s.Kind, s.Message = KindNoResolutionMatch, noMatch.Error()
		s.AvailableCategories = noMatch.Categories
	case errors.As(err, &invalidAOI):
		s.Kind, s.Message = KindInvalidAOI, invalidAOI.Error()
	case errors.As(err, &tooLarge):
		s.Kind, s.Message = KindAOITooLarge, tooLarge.Error()
	case errors.As(err, &invalidTR):
		s.Kind, s.Message = KindInvalidTimeRange, invalidTR.Error()
	case errors.As(err, &noData):
		s.Kind, s.Message = KindNoDataFound, noData.Error()
		s.Suggestion = noData.Suggestion
	case errors.As(err, &unsupported):
		s.Kind, s.Message = KindUnsupportedDatasetShape, unsupported.Error()
	case errors.As(err, &unknownVars):
		s.Kind, s.Message = KindUnknownVariables, unknownVars.Error()
		s.AvailableVariables = unknownVars.Available
	case errors.As(err, &invalidReq):
		s.Kind, s.Message = KindInvalidRequest, invalidReq.Error()
	}
	return s
}

// HTTPStatus returns the status code of the kind of error
func (s StructuredError) HTTPStatus() int {
	switch s.Kind {
	case KindInternal:
		return http.StatusInternalServerError
	case KindNoDataFound:
		return http.StatusNotFound
	case KindAOITooLarge:
		return http.StatusRequestEntityTooLarge
	case KindAmbiguousResolution:
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

func outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	return ToStructured(err).Kind
}
