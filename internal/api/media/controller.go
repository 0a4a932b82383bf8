package media

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Siphon/internal/api/apierror"
	"github.com/hbomb79/Siphon/internal/extraction"
	"github.com/hbomb79/Siphon/internal/storage"
	"github.com/hbomb79/Siphon/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/bytes"
)

type (
	Service interface {
		Probe(ctx context.Context, url string) (*extraction.Result, error)
		FetchFormat(ctx context.Context, url string, formatID string) (*extraction.DownloadedFile, error)
	}

	Store interface {
		Resolve(name string) (string, fs.FileInfo, error)
	}

	// Controller exposes the extract -> select -> download workflow. Media
	// is never cached: every extract and select call reaches the engine.
	Controller struct {
		service  Service
		store    Store
		validate *validator.Validate
	}
)

var controllerLogger = logger.Get("MediaController")

func New(validate *validator.Validate, service Service, store Store) *Controller {
	return &Controller{service: service, store: store, validate: validate}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/extract", controller.extract)
	eg.POST("/select", controller.selectFormat)
	eg.GET(DownloadRoutePrefix+":filename", controller.download)
}

// extract lists the formats available for the URL in the request body.
func (controller *Controller) extract(ec echo.Context) error {
	var request ExtractRequest
	if err := controller.bindAndValidate(ec, &request); err != nil {
		return err
	}

	result, err := controller.service.Probe(detachedContext(ec), request.URL)
	if err != nil {
		return apierror.FromExtraction(err)
	}

	return ec.JSON(http.StatusOK, NewExtractResponse(result))
}

// selectFormat downloads the requested format in to storage, and responds with
// the location the client can retrieve it from.
func (controller *Controller) selectFormat(ec echo.Context) error {
	var request SelectRequest
	if err := controller.bindAndValidate(ec, &request); err != nil {
		return err
	}

	file, err := controller.service.FetchFormat(detachedContext(ec), request.URL, request.FormatID)
	if err != nil {
		return apierror.FromExtraction(err)
	}

	if file.Size != nil {
		controllerLogger.Emit(logger.INFO, "Prepared %s (%s) for download\n", file.Name, bytes.Format(*file.Size))
	}
	return ec.JSON(http.StatusOK, NewSelectResponse(file))
}

// download streams a previously selected file back to the client as an attachment.
func (controller *Controller) download(ec echo.Context) error {
	name := ec.Param("filename")
	if ec.Request().URL.RawPath != "" {
		// Echo routes on the raw path when one is present, leaving params escaped
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}
	}

	path, _, err := controller.store.Resolve(name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apierror.ErrFileNotFound
		}
		return apierror.Unexpected(err)
	}

	return ec.Attachment(path, storage.SanitizeFilename(name))
}

func (controller *Controller) bindAndValidate(ec echo.Context, request any) error {
	if err := ec.Bind(request); err != nil {
		return apierror.Validation(bindErrorMessage(err))
	}

	if err := controller.validate.Struct(request); err != nil {
		return apierror.Validation(err.Error())
	}

	return nil
}

func bindErrorMessage(err error) string {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		if msg, ok := httpErr.Message.(string); ok {
			return msg
		}
	}
	return err.Error()
}

// detachedContext returns a context which carries the request values, but will
// not be cancelled if the client disconnects. Engine work which has already
// started is always allowed to finish.
func detachedContext(ec echo.Context) context.Context {
	return context.WithoutCancel(ec.Request().Context())
}
