package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/hbomb79/Siphon/internal/extraction"
	"github.com/hbomb79/Siphon/pkg/logger"
	"github.com/labstack/echo/v4"
)

var log = logger.Get("API")

// APIError is the only shape of error body Siphon responds with. Every
// failed request results in a JSON object with a single 'error' string.
type APIError struct {
	// Human readable error display message
	Message string `json:"error"`

	// Used to alter the HTTP response status in accordance with the error
	Status int `json:"-"`

	// Additional message for internal logging only. Will not be included in the message
	// sent to the user.
	InternalMessage string `json:"-"`
}

// Error satisifies the Go error interface and simply exposes the
// message contained by this APIError.
func (err APIError) Error() string {
	return fmt.Sprintf("api error (%d): %s", err.Status, err.Message)
}

var (
	ErrFileNotFound = APIError{Status: http.StatusNotFound, Message: "File not found"}

	kindStatuses = map[extraction.Kind]int{
		extraction.KindUnexpected:  http.StatusInternalServerError,
		extraction.KindValidation:  http.StatusBadRequest,
		extraction.KindNoFormats:   http.StatusNotFound,
		extraction.KindExtraction:  http.StatusBadRequest,
		extraction.KindFileMissing: http.StatusBadRequest,
	}

	kindMessages = map[extraction.Kind]func(string) string{
		extraction.KindUnexpected:  func(detail string) string { return "An unexpected error occurred: " + detail },
		extraction.KindValidation:  func(detail string) string { return "Invalid request: " + detail },
		extraction.KindNoFormats:   func(string) string { return "No formats found" },
		extraction.KindExtraction:  func(detail string) string { return "Download error: " + detail },
		extraction.KindFileMissing: func(string) string { return "Failed to download video" },
	}
)

// Validation constructs an APIError for a malformed request.
func Validation(detail string) APIError {
	return newAPIError(extraction.KindValidation, detail, "")
}

// Unexpected wraps an error which Siphon could not classify.
func Unexpected(err error) APIError {
	return newAPIError(extraction.KindUnexpected, err.Error(), err.Error())
}

// FromExtraction converts any error returned from the extraction
// client in to an APIError, using the fixed Kind to status table.
func FromExtraction(err error) APIError {
	var extractionErr *extraction.Error
	if !errors.As(err, &extractionErr) {
		return Unexpected(err)
	}

	internal := ""
	if extractionErr.Err != nil {
		internal = extractionErr.Err.Error()
	}

	return newAPIError(extractionErr.Kind, extractionErr.Detail, internal)
}

func newAPIError(kind extraction.Kind, detail string, internal string) APIError {
	status, ok := kindStatuses[kind]
	if !ok {
		kind, status = extraction.KindUnexpected, http.StatusInternalServerError
	}

	return APIError{
		Status:          status,
		Message:         kindMessages[kind](detail),
		InternalMessage: internal,
	}
}

// HTTPErrorHandler is installed as the echo error handler. APIErrors are
// rendered as-is, echo's own HTTP errors (unknown routes, bad methods, ...)
// are rendered in the same shape, and anything else becomes a 500.
func HTTPErrorHandler(err error, ec echo.Context) {
	if ec.Response().Committed {
		return
	}

	var apiErr APIError
	if !errors.As(err, &apiErr) {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			apiErr = APIError{Status: httpErr.Code, Message: fmt.Sprint(httpErr.Message)}
		} else {
			apiErr = Unexpected(err)
		}
	}

	if apiErr.Status == 0 {
		apiErr.Status = http.StatusInternalServerError
	}
	if len(apiErr.Message) == 0 {
		apiErr.Message = http.StatusText(apiErr.Status)
	}
	if len(apiErr.InternalMessage) > 0 {
		log.Errorf("Request failure, internal error: %s\n", apiErr.InternalMessage)
	}

	if ec.Request().Method == http.MethodHead {
		err = ec.NoContent(apiErr.Status)
	} else {
		err = ec.JSON(apiErr.Status, apiErr)
	}
	if err != nil {
		log.Warnf("Failed to write error response for %s %s: %v\n", ec.Request().Method, ec.Request().RequestURI, err)
	}
}
