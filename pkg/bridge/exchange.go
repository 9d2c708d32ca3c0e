package bridge

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"assetbridge/pkg/httpx"
	"assetbridge/pkg/logger"
	"assetbridge/pkg/telemetry"
)

// exchange tracks one request from receipt to its terminal state.
type exchange struct {
	id       string
	start    time.Time
	kind     telemetry.Kind
	state    telemetry.State
	encoding string
	req      httpx.RequestSnapshot
	err      error
	w        *trackedWriter
}

func (ex *exchange) to(s telemetry.State) {
	if ex.state.Terminal() {
		return
	}
	ex.state = s
}

// finish moves the exchange to its terminal state. Cancellation is an abort,
// never a failure.
func (ex *exchange) finish(ctx context.Context, err error) error {
	switch {
	case err == nil:
		ex.to(telemetry.StateDone)
		return nil
	case isCancel(ctx, err):
		ex.to(telemetry.StateAborted)
		return nil
	default:
		ex.to(telemetry.StateFailed)
		ex.err = err
		return err
	}
}

func (ex *exchange) event() telemetry.Event {
	ev := telemetry.Event{
		ID:       ex.id,
		Start:    ex.start,
		Duration: float64(time.Since(ex.start)) / float64(time.Millisecond),
		Kind:     ex.kind,
		State:    ex.state,
		Encoding: ex.encoding,
		Bytes:    ex.w.bytes,
		Request:  ex.req,
		Response: httpx.ResponseSnapshot{
			Status: ex.w.status,
			Header: logger.RedactHeaders(ex.w.header),
		},
	}
	if ex.err != nil {
		ev.Err = ex.err.Error()
	}
	return ev
}

func isCancel(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, io.ErrClosedPipe)
}

// trackedWriter records what reached the transport.
type trackedWriter struct {
	httpx.StreamWriter
	status int
	header http.Header
	bytes  int64
}

func (t *trackedWriter) WriteHeader(status int, header http.Header, endStream bool) error {
	if err := t.StreamWriter.WriteHeader(status, header, endStream); err != nil {
		return err
	}
	t.status = status
	t.header = header
	return nil
}

func (t *trackedWriter) Write(p []byte) (int, error) {
	if t.status == 0 {
		t.status = http.StatusOK
	}
	n, err := t.StreamWriter.Write(p)
	t.bytes += int64(n)
	return n, err
}
