package bigquery

import (
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
)

func hasStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// IsNotFound reports whether err is a BigQuery 404.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsAlreadyExists reports whether err is a BigQuery 409.
func IsAlreadyExists(err error) bool {
	return hasStatus(err, http.StatusConflict)
}
