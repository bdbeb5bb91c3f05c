package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/mafunzo/mafunzo/core"
	"github.com/mafunzo/mafunzo/core/enrollment"
	"github.com/mafunzo/mafunzo/core/program"
	"github.com/mafunzo/mafunzo/core/referral"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound  = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// domain sentinels and the HTTP status they map to. Anything not listed
// here is a server error.
var errStatuses = map[error]int{
	referral.ErrCodeNotFound:      http.StatusNotFound,
	referral.ErrPolicyNotFound:    http.StatusNotFound,
	referral.ErrTrackingNotFound:  http.StatusNotFound,
	referral.ErrCodeInactive:      http.StatusBadRequest,
	referral.ErrWrongProgram:      http.StatusBadRequest,
	referral.ErrUsageCapExceeded:  http.StatusConflict,
	referral.ErrInvalidTransition: http.StatusConflict,
	referral.ErrNoPolicy:          http.StatusNotFound,

	program.ErrNotFound: http.StatusNotFound,

	enrollment.ErrDraftNotFound:      http.StatusNotFound,
	enrollment.ErrNotFound:           http.StatusNotFound,
	enrollment.ErrProgramInactive:    http.StatusConflict,
	enrollment.ErrAlreadyEnrolled:    http.StatusConflict,
	enrollment.ErrAlreadyFinal:       http.StatusConflict,
	enrollment.ErrDraftAlreadySubmit: http.StatusConflict,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(core.Translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			if status, ok := errStatuses[origErr]; ok {
				code = status
				message = origErr.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg
			logger.Error(msg, errors.Wrap(err, msg))

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
