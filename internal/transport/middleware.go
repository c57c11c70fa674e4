package transport

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Response is a fully read 2xx response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// RoundTrip performs one exchange. Any outcome other than a 2xx response is
// returned as a *Error.
type RoundTrip func(req *http.Request) (*Response, error)

// Middleware wraps a RoundTrip with a cross-cutting concern.
type Middleware func(next RoundTrip) RoundTrip

// Chain composes mws around rt. The first middleware is the outermost.
func Chain(rt RoundTrip, mws ...Middleware) RoundTrip {
	for i := len(mws) - 1; i >= 0; i-- {
		rt = mws[i](rt)
	}
	return rt
}

// Notifier receives user-facing failure notices. Persistent notices stay
// until the user dismisses them; the rest expire on their own.
type Notifier interface {
	Notify(title, message string, persistent bool)
}

// Logging records every attempt and its outcome.
func Logging(logger *zap.Logger) Middleware {
	return func(next RoundTrip) RoundTrip {
		return func(req *http.Request) (*Response, error) {
			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", req.URL.RequestURI()),
			}
			logger.Debug("sending request", fields...)

			start := time.Now()
			resp, err := next(req)
			fields = append(fields, zap.Duration("duration", time.Since(start)))

			if err != nil {
				if te, ok := AsError(err); ok {
					fields = append(fields, zap.String("kind", string(te.Kind)), zap.Int("status", te.Status))
				}
				logger.Warn("request failed", append(fields, zap.Error(err))...)
				return nil, err
			}

			fields = append(fields, zap.Int("status", resp.Status))
			if pt := resp.Header.Get("X-Process-Time"); pt != "" {
				fields = append(fields, zap.String("process_time", pt))
			}
			logger.Info("request succeeded", fields...)
			return resp, nil
		}
	}
}

// Notifying turns classified failures into notices. The error is always
// passed back to the caller unchanged.
func Notifying(n Notifier) Middleware {
	return func(next RoundTrip) RoundTrip {
		return func(req *http.Request) (*Response, error) {
			resp, err := next(req)
			if err == nil {
				return resp, nil
			}
			te, ok := AsError(err)
			if !ok {
				n.Notify("", err.Error(), false)
				return nil, err
			}
			n.Notify(noticeTitle(te.Kind), te.Message, te.Kind.Persistent())
			return nil, err
		}
	}
}

func noticeTitle(k Kind) string {
	switch k {
	case KindServer:
		return "System error"
	case KindNetwork:
		return "Network error"
	default:
		return ""
	}
}
