// Package httpserver owns the TCP accept loop and per-connection
// HTTP/1.0 handling, translating parsed requests into Frontend calls and
// writing back whatever resp.Result the Frontend produces.
//
// Grounded on the teacher's internal/server HandleConn/ListenAndServe,
// generalized to carry POST bodies and binary (image) response bodies.
package httpserver

import (
	"bufio"
	"encoding/json"
	"io"
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gis-map-server/internal/frontend"
	"gis-map-server/internal/http10"
	"gis-map-server/internal/metrics"
	"gis-map-server/internal/resp"
)

// Server accepts connections and dispatches each one to the Frontend.
type Server struct {
	fe      *frontend.Frontend
	metrics *metrics.Recorder
	logger  *zap.SugaredLogger

	startedAt time.Time
	connCount uint64
}

func New(fe *frontend.Frontend, rec *metrics.Recorder, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if rec == nil {
		rec = metrics.NewRecorder()
	}
	return &Server{fe: fe, metrics: rec, logger: logger, startedAt: time.Now()}
}

// ListenAndServe accepts connections on addr until the listener errors
// (typically because the caller closed it from another goroutine).
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		atomic.AddUint64(&s.connCount, 1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(c net.Conn) {
	defer c.Close()

	trace := map[string]string{
		"X-Request-Id": uuid.NewString(),
		"Connection":   "close",
	}

	r := bufio.NewReader(c)
	req, err := http10.ParseRequest(r)
	if err != nil {
		s.writeResult(c, frontend.BadRequest(resp.StatusInvalidParam, err.Error()), trace)
		return
	}

	switch req.Method {
	case "GET":
		path, query := http10.SplitTarget(req.Target)
		if path == "/status" {
			s.writeStatus(c, trace)
			return
		}
		fields := http10.ParseQuery(query)
		s.writeResult(c, s.fe.GET(fields, req.Header), trace)

	case "POST":
		length, err := strconv.Atoi(req.Header["content-length"])
		if err != nil {
			s.writeResult(c, frontend.BadRequest(resp.StatusInvalidParam, "missing or invalid Content-Length"), trace)
			return
		}
		body, err := http10.ReadBody(r, length)
		if err != nil {
			s.writeResult(c, frontend.BadRequest(resp.StatusInvalidParam, err.Error()), trace)
			return
		}
		s.writeResult(c, s.fe.POST(req.Header, body), trace)

	default:
		s.writeResult(c, frontend.BadRequest(resp.StatusInvalidParam, "unsupported method "+req.Method), trace)
	}
}

// writeStatus answers the operational health-check endpoint kept from
// the teacher's server — not part of the original gis-map-server wire
// protocol, but the natural home for the metrics.Recorder snapshot.
func (s *Server) writeStatus(w io.Writer, trace map[string]string) {
	out := map[string]any{
		"pid":         os.Getpid(),
		"uptime_ms":   time.Since(s.startedAt).Milliseconds(),
		"started_at":  s.startedAt.UTC().Format(time.RFC3339Nano),
		"connections": atomic.LoadUint64(&s.connCount),
		"metrics":     s.metrics.Snapshot(),
	}
	b, _ := json.Marshal(out)
	http10.WriteJSONH(w, 200, string(b), trace)
}

func (s *Server) writeResult(w io.Writer, r resp.Result, trace map[string]string) {
	headers := make(map[string]string, len(trace)+len(r.Headers))
	for k, v := range trace {
		headers[k] = v
	}
	for k, v := range r.Headers {
		headers[k] = v
	}

	if r.Raw != nil {
		http10.WriteBinaryH(w, r.Status, r.ContentType, r.Raw, headers)
		return
	}

	ct := r.ContentType
	if ct == "" {
		ct = "text/plain; charset=utf-8"
	}
	http10.WriteBinaryH(w, r.Status, ct, []byte(r.Body), headers)
}
