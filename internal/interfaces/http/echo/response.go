package echo

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	app "github.com/mohammadpnp/alumni-import/internal/application/alumni"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

var errorMappings = []errorMapping{
	{app.ErrInvalidImportSource, http.StatusBadRequest, "invalid_source", "provide exactly one .csv or .xlsx file or blob_uri"},
	{app.ErrInvalidCollegeID, http.StatusBadRequest, "invalid_college_id", "college_id must be a UUID"},
	{app.ErrInvalidImportID, http.StatusBadRequest, "invalid_import_id", "import id must be a UUID"},
	{app.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated", "authentication required"},
	{app.ErrForbidden, http.StatusForbidden, "forbidden", "not allowed to manage imports of this college"},
	{app.ErrCollegeNotFound, http.StatusNotFound, "college_not_found", "college not found"},
	{app.ErrImportNotFound, http.StatusNotFound, "import_not_found", "import not found"},
	{app.ErrImportInProgress, http.StatusConflict, "import_in_progress", "import is already processing"},
	{app.ErrImportNotCancellable, http.StatusConflict, "import_not_cancellable", "import already finished"},
}

// mapError translates use case errors into a status and envelope error. Unknown errors are 500.
func mapError(err error) (int, *errorBody) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, &errorBody{Code: m.code, Message: m.message}
		}
	}
	return http.StatusInternalServerError, &errorBody{Code: "internal_error", Message: "internal server error"}
}

func badRequest(c echo.Context, code, message string) error {
	return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{Code: code, Message: message}})
}
