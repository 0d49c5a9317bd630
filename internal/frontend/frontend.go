// Package frontend implements the HTTP-facing request handling described
// in spec.md §4.3/§4.4: translating GET/POST requests into Scheduler and
// Buffer calls and rendering the HTML/plain-text/binary responses the
// wire protocol promises.
//
// Grounded on original_source/src/gis-map-server/net_interface.py's
// Handler.do_GET/do_POST/bad_request.
package frontend

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"gis-map-server/internal/buffer"
	"gis-map-server/internal/resp"
	"gis-map-server/internal/scheduler"
)

const (
	submitTimeout = 1 * time.Second
	checkTimeout  = 2 * time.Second
	evictTimeout  = 1 * time.Second
)

// Frontend owns the pieces of server state a request handler needs:
// the Scheduler to submit/poll/evict orders against, the Buffer rendered
// artifacts are pushed into and popped from, and the HTML page templates.
type Frontend struct {
	sched  *scheduler.Scheduler
	buf    *buffer.Buffer
	pages  *Pages
	addr   string
	port   int
	logger *zap.SugaredLogger
}

func New(sched *scheduler.Scheduler, buf *buffer.Buffer, pages *Pages, addr string, port int, logger *zap.SugaredLogger) *Frontend {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Frontend{sched: sched, buf: buf, pages: pages, addr: addr, port: port, logger: logger}
}

// withCORS attaches the Access-Control-Allow-Origin header every response
// carries, matching net_interface.py's Handler.bad_request/do_GET, both of
// which call self.send_header("Access-Control-Allow-Origin", "*") on every
// reply path.
func withCORS(r resp.Result) resp.Result {
	return r.WithHeader("Access-Control-Allow-Origin", "*")
}

// isGISAgent mirrors do_GET's `'gis' in dict(self.headers)['agent']`
// sniff: requests carrying an "agent" header naming the GIS renderer get
// a plain-text reply instead of the HTML order-acknowledgement page.
func isGISAgent(headers map[string]string) bool {
	return strings.Contains(headers["agent"], "gis")
}

// GET handles a parsed GET request: fields is the query string already
// split into key=value pairs (no percent-decoding, matching the wire
// format spec.md §4 describes).
func (f *Frontend) GET(fields map[string]string, headers map[string]string) resp.Result {
	if len(fields) == 0 {
		body, err := f.pages.StartPage(f.addr, f.port)
		if err != nil {
			return f.badRequest(resp.StatusRequestFailed, err.Error())
		}
		return withCORS(resp.HTML(resp.StatusReady, body))
	}

	if _, hasOrderID := fields["orderId"]; !hasOrderID {
		return f.submit(fields, headers)
	}
	return f.poll(fields)
}

func (f *Frontend) submit(fields map[string]string, headers map[string]string) resp.Result {
	id, pincode, ok, timedOut := f.sched.Submit(fields, submitTimeout)
	if timedOut {
		return f.badRequest(resp.StatusTimeout, "")
	}
	if !ok {
		return f.badRequest(resp.StatusInvalidParam, "")
	}

	if isGISAgent(headers) {
		body := fmt.Sprintf("orderId=%d, pincode=%s", id, pincode)
		return withCORS(resp.PlainOK(body))
	}

	body, err := f.pages.OrderRequestPage(f.addr, f.port, id, pincode)
	if err != nil {
		return f.badRequest(resp.StatusRequestFailed, err.Error())
	}
	return withCORS(resp.HTML(resp.StatusReady, body))
}

func (f *Frontend) poll(fields map[string]string) resp.Result {
	pincode, hasPincode := fields["pincode"]
	if !hasPincode {
		return f.badRequest(resp.StatusInvalidParam, "")
	}
	orderID, err := strconv.ParseInt(fields["orderId"], 10, 64)
	if err != nil {
		return f.badRequest(resp.StatusInvalidParam, err.Error())
	}

	status, timedOut := f.sched.Check(orderID, pincode, checkTimeout)
	if timedOut {
		return f.badRequest(resp.StatusTimeout, "")
	}
	if status != resp.StatusReady {
		return f.badRequest(status, "")
	}

	payload, format, ok := f.buf.PopByID(orderID)
	if !ok {
		return f.badRequest(resp.StatusRequestFailed, "order marked ready but missing from buffer")
	}
	return withCORS(resp.Image(payload, format))
}

// POST handles the renderer's upload: headers carries the lower-cased
// request headers (orderid, content-type, content-length), body is the
// already-read payload of exactly Content-Length bytes.
func (f *Frontend) POST(headers map[string]string, body []byte) resp.Result {
	orderID, err := strconv.ParseInt(headers["orderid"], 10, 64)
	if err != nil {
		return f.badRequest(resp.StatusInvalidParam, err.Error())
	}
	format := headers["content-type"]

	status, evicted := f.buf.Push(orderID, body, format)

	ack, timedOut := f.sched.Evict(evicted, evictTimeout)
	if timedOut {
		return f.badRequest(resp.StatusTimeout, "scheduler did not respond")
	}
	if !ack {
		return f.badRequest(resp.StatusRequestFailed, "scheduler could not delete previous ids from table")
	}

	if status != resp.StatusReady {
		return f.badRequest(status, "Id is busy")
	}
	return withCORS(resp.PlainOK("Accepted"))
}

// badRequest renders the HTML error page do_POST/do_GET fall back to on
// any failure, keeping the exact "Bad request: <code>:<description> <exc>"
// wording of the original handler.
func (f *Frontend) badRequest(code int, exc string) resp.Result {
	return BadRequest(code, exc)
}

// BadRequest renders the same HTML error page as badRequest, exported so
// internal/httpserver can use it for protocol-level failures (malformed
// request line, bad Content-Length, unreadable body) that occur before a
// *Frontend method is ever reached. net_interface.py's do_POST hits this
// same bad_request() fallback for its equivalent invalid-Content-Length
// case, so protocol errors and domain errors share one HTML wording and
// both carry Access-Control-Allow-Origin.
func BadRequest(code int, exc string) resp.Result {
	body := fmt.Sprintf(
		"<html><head><meta charset=\"utf-8\"><title>Bad request</title></head><body><p>Bad request: %d:%s %s</p></body></html>",
		code, resp.StatusDesc(code), exc,
	)
	return withCORS(resp.HTML(code, body))
}
