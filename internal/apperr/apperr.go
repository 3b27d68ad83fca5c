// Package apperr defines the error classes shared across the service so that
// handlers can map any error to an HTTP status without inspecting messages.
package apperr

import (
	"net/http"

	"github.com/zeebo/errs"
)

var (
	// Validation covers empty labels, malformed ids and other bad input,
	// detected before any store access.
	Validation = errs.Class("validation")

	// NotFound covers unknown datasets, images and blobs.
	NotFound = errs.Class("not found")

	// PermissionDenied covers an actor touching another author's label
	// without ownership.
	PermissionDenied = errs.Class("permission denied")

	// Conflict covers duplicate dataset names on create.
	Conflict = errs.Class("conflict")

	// StorageUnavailable covers blob backend write/read failures.
	StorageUnavailable = errs.Class("storage unavailable")

	// StorageTimeout covers blob operations cut short by the caller deadline.
	StorageTimeout = errs.Class("storage timeout")
)

// HTTPStatus maps an error to the response status for its class.
func HTTPStatus(err error) int {
	switch {
	case Validation.Has(err):
		return http.StatusBadRequest
	case NotFound.Has(err):
		return http.StatusNotFound
	case PermissionDenied.Has(err):
		return http.StatusForbidden
	case Conflict.Has(err):
		return http.StatusConflict
	case StorageTimeout.Has(err):
		return http.StatusGatewayTimeout
	case StorageUnavailable.Has(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
