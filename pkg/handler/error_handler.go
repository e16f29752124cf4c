package handler

import (
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/storefleet/pkg/logger"
)

// Classifier maps err to an HTTPError. It returns false when err is not its concern.
type Classifier func(err error) (HTTPError, bool)

// Classify runs classifiers in order and returns err converted by the first
// one that claims it, or err unchanged.
func Classify(err error, classifiers ...Classifier) error {
	for _, c := range classifiers {
		if httpErr, ok := c(err); ok {
			return classified{HTTPError: httpErr, cause: err}
		}
	}
	return err
}

// classified keeps the original cause reachable for errors.Is and logging
// while exposing the mapped HTTPError to errors.As.
type classified struct {
	HTTPError
	cause error
}

func (c classified) Unwrap() []error { return []error{c.HTTPError, c.cause} }

// NewErrorHandler returns an ErrorHandler that classifies err, logs it and
// writes a JSON error envelope. Server errors log at error level, client
// errors at debug.
func NewErrorHandler(log *slog.Logger, classifiers ...Classifier) ErrorHandler[Context] {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return func(ctx Context, err error) {
		err = Classify(err, classifiers...)
		status, _ := describe(err)

		r := ctx.Request()
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		log.Log(ctx, level, "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			logger.Error(err),
		)

		if renderErr := JSONError(err).Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.ErrorContext(ctx, "failed to render error response", logger.Error(renderErr))
		}
	}
}
