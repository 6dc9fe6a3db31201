// Package assemble turns a collaborator call into a model.Response.
package assemble

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/logging"
	"github.com/ggonzalez94/defi-agent/internal/model"
)

// Op describes the call for logging. Params are redacted before they are
// written.
type Op struct {
	Action   string
	Endpoint string
	Params   map[string]any
}

// Check validates a decoded result. Untyped errors are reported as
// DATA_FORMAT_ERROR; typed errors keep their own code.
type Check[T any] func(T) error

// Run invokes call and wraps the outcome. It never panics: a panic inside
// call or a check is reported as INTERNAL_ERROR.
func Run[T any](ctx context.Context, log logrus.FieldLogger, op Op, call func(context.Context) (T, error), checks ...Check[T]) (resp model.Response[T]) {
	if log == nil {
		log = logging.Discard()
	}
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := clierr.New(clierr.CodeInternal, fmt.Sprintf("internal failure: %v", r))
			resp = fail[T](log, op, started, err)
		}
	}()

	result, err := call(ctx)
	if err != nil {
		return fail[T](log, op, started, err)
	}
	for _, check := range checks {
		if err := check(result); err != nil {
			if _, typed := clierr.As(err); !typed {
				err = clierr.Wrap(clierr.CodeDataFormat, "unexpected result shape", err)
			}
			return fail[T](log, op, started, err)
		}
	}
	log.WithFields(logrus.Fields{
		"action":     op.Action,
		"endpoint":   op.Endpoint,
		"latency_ms": time.Since(started).Milliseconds(),
	}).Debug("action succeeded")
	return model.OK(result)
}

// Failure builds an error response for err without calling anything,
// e.g. when a required parameter is missing before any request is made.
func Failure[T any](log logrus.FieldLogger, op Op, err error) model.Response[T] {
	if log == nil {
		log = logging.Discard()
	}
	return fail[T](log, op, time.Now(), err)
}

func fail[T any](log logrus.FieldLogger, op Op, started time.Time, err error) model.Response[T] {
	tag := clierr.TagOf(err)
	log.WithFields(logging.Redact(op.Params)).WithFields(logrus.Fields{
		"action":     op.Action,
		"endpoint":   op.Endpoint,
		"code":       tag,
		"at":         started.UTC().Format(time.RFC3339),
		"latency_ms": time.Since(started).Milliseconds(),
	}).WithError(err).Warn("action failed")
	return model.Fail[T](tag, messageOf(err))
}

func messageOf(err error) string {
	if cErr, ok := clierr.As(err); ok {
		return cErr.Message
	}
	return err.Error()
}

// MissingParam reports a required entity the text did not name.
func MissingParam(name string, supported ...string) error {
	msg := fmt.Sprintf("missing required parameter: %s", name)
	if len(supported) > 0 {
		msg += fmt.Sprintf(" (supported: %s)", strings.Join(supported, ", "))
	}
	return clierr.New(clierr.CodeUsage, msg)
}

// NotFound reports a resolved entity that has no record upstream.
func NotFound(format string, args ...any) error {
	return clierr.New(clierr.CodeNotFound, fmt.Sprintf(format, args...))
}

// NonEmpty rejects empty list results.
func NonEmpty[E any](what string) Check[[]E] {
	return func(items []E) error {
		if len(items) == 0 {
			return clierr.New(clierr.CodeNotFound, fmt.Sprintf("no %s found", what))
		}
		return nil
	}
}
