// Package resp defines the uniform result contract returned by every
// handler in the gis-map-server front-end: a status code, a body (text,
// HTML, or a raw binary artifact), and optional extra headers. Every
// error response on the wire is HTML, per spec.md §4.3/§7 — there is no
// JSON error surface.
package resp

// Status codes used across the server. These mirror the Request_Status
// enum of the original gis-map-server: some are genuine statuses stored
// inside the order table (StatusReady/StatusProcessing/StatusNoMem/...),
// others only ever appear on the wire in a response the front-end emits
// itself (StatusTimeout/StatusRequestFailed).
const (
	StatusReady         = 200
	StatusProcessing    = 202
	StatusInvalidParam  = 400
	StatusTimeout       = 408
	StatusDone          = 410 // reserved: see SPEC_FULL.md §11, never assigned
	StatusNoMem         = 418
	StatusRenderFailed  = 500
	StatusRequestFailed = 520
)

// Result is the contract every front-end handler returns. Exactly one of
// Body (text/html) or Raw (a binary artifact, e.g. a rendered tile) is
// meaningful for a given Result.
type Result struct {
	Status      int
	Body        string
	Raw         []byte
	ContentType string // used verbatim when Raw is non-nil
	Headers     map[string]string
}

// WithHeader returns a copy of Result with an additional header set. If
// Headers was nil, a fresh map is allocated for the copy; if it already
// existed, the copy shares the same underlying map.
func (r Result) WithHeader(k, v string) Result {
	if r.Headers == nil {
		r.Headers = make(map[string]string, 1)
	}
	r.Headers[k] = v
	return r
}

func PlainOK(body string) Result {
	return Result{Status: StatusReady, Body: body, ContentType: "text/plain; charset=utf-8"}
}

func HTML(status int, body string) Result {
	return Result{Status: status, Body: body, ContentType: "text/html"}
}

// Image wraps a rendered artifact's bytes for a 200 response carrying the
// format string as Content-Type, per spec.md §4.3 (GET poll/retrieve).
func Image(payload []byte, contentType string) Result {
	return Result{Status: StatusReady, Raw: payload, ContentType: contentType}
}

// StatusDesc returns a short machine-readable slug for a status code, used
// in HTML error bodies.
func StatusDesc(status int) string {
	switch status {
	case StatusReady:
		return "ready"
	case StatusProcessing:
		return "processing"
	case StatusInvalidParam:
		return "invalid_param"
	case StatusDone:
		return "done"
	case StatusNoMem:
		return "nomem"
	case StatusRenderFailed:
		return "render_failed"
	case StatusTimeout:
		return "timeout"
	case StatusRequestFailed:
		return "request_failed"
	default:
		return "unknown"
	}
}
