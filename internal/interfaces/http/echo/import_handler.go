package echo

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	app "github.com/mohammadpnp/alumni-import/internal/application/alumni"
)

type ImportUseCases struct {
	Start  app.StartImport
	Get    app.GetImport
	Retry  app.RetryImport
	Cancel app.CancelImport
	Rows   app.ListImportRows
}

type ImportHandler struct {
	useCases ImportUseCases
	logger   *zap.Logger
}

type startImportRequest struct {
	CollegeID string `json:"college_id"`
	BlobURI   string `json:"blob_uri"`
}

func NewImportHandler(useCases ImportUseCases, logger *zap.Logger) *ImportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportHandler{useCases: useCases, logger: logger}
}

// StartImport accepts either JSON {college_id, blob_uri} or a multipart form with college_id and file.
func (h *ImportHandler) StartImport(c echo.Context) error {
	in := app.StartImportInput{Actor: actorFrom(c)}

	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		in.CollegeID = c.FormValue("college_id")
		in.BlobURI = c.FormValue("blob_uri")

		header, err := c.FormFile("file")
		if err != nil && !errors.Is(err, http.ErrMissingFile) {
			return badRequest(c, "bad_request", "invalid multipart body")
		}
		if header != nil {
			file, err := header.Open()
			if err != nil {
				return badRequest(c, "bad_request", "could not read uploaded file")
			}
			defer file.Close()
			in.File = file
			in.FileName = header.Filename
		}
	} else {
		var req startImportRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "bad_request", "invalid request body")
		}
		in.CollegeID = req.CollegeID
		in.BlobURI = req.BlobURI
	}

	out, err := h.useCases.Start.Execute(c.Request().Context(), in)
	if err != nil {
		return h.fail(c, err, nil)
	}
	return c.JSON(http.StatusAccepted, apiResponse{Data: out})
}

func (h *ImportHandler) GetImport(c echo.Context) error {
	view, err := h.useCases.Get.Execute(c.Request().Context(), app.GetImportInput{
		Actor:    actorFrom(c),
		ImportID: c.Param("id"),
	})
	if err != nil {
		return h.fail(c, err, nil)
	}
	return c.JSON(http.StatusOK, apiResponse{Data: view})
}

func (h *ImportHandler) RetryImport(c echo.Context) error {
	view, err := h.useCases.Retry.Execute(c.Request().Context(), app.RetryImportInput{
		Actor:    actorFrom(c),
		ImportID: c.Param("id"),
	})
	if err != nil {
		// a 409 still reports how far the running attempt got
		return h.fail(c, err, progressOf(view))
	}
	return c.JSON(http.StatusAccepted, apiResponse{Data: view})
}

func (h *ImportHandler) CancelImport(c echo.Context) error {
	view, err := h.useCases.Cancel.Execute(c.Request().Context(), app.CancelImportInput{
		Actor:    actorFrom(c),
		ImportID: c.Param("id"),
	})
	if err != nil {
		return h.fail(c, err, progressOf(view))
	}
	return c.JSON(http.StatusAccepted, apiResponse{Data: view})
}

func (h *ImportHandler) ListRows(c echo.Context) error {
	in := app.ListImportRowsInput{Actor: actorFrom(c), ImportID: c.Param("id")}

	if raw := c.QueryParam("success"); raw != "" {
		success, err := strconv.ParseBool(raw)
		if err != nil {
			return badRequest(c, "invalid_query", "success must be true or false")
		}
		in.Success = &success
	}
	var err error
	if in.Page, err = intQuery(c, "page"); err != nil {
		return badRequest(c, "invalid_query", "page must be a positive integer")
	}
	if in.PageSize, err = intQuery(c, "page_size"); err != nil {
		return badRequest(c, "invalid_query", "page_size must be a positive integer")
	}

	out, err := h.useCases.Rows.Execute(c.Request().Context(), in)
	if err != nil {
		return h.fail(c, err, nil)
	}
	return c.JSON(http.StatusOK, apiResponse{Data: out})
}

func (h *ImportHandler) fail(c echo.Context, err error, data any) error {
	status, body := mapError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("import request failed",
			zap.String("path", c.Path()),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.Error(err),
		)
	}
	return c.JSON(status, apiResponse{Data: data, Error: body})
}

func progressOf(view app.ImportView) any {
	if view.ID == "" {
		return nil
	}
	return view
}

func intQuery(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, strconv.ErrSyntax
	}
	return value, nil
}
