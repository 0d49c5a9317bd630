// Package render spawns and reaps the external renderer process, and
// issues the one-time shared-memory preparation call the gis toolchain
// requires at startup. Grounded on
// original_source/src/gis-map-server/scheduler.py's
// `subprocess.Popen([util_path, ...])` / `.poll()` / `.returncode` and
// server.py's `subprocess.run(["gis-control", ...])`.
package render

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"go.uber.org/zap"
)

// Exit codes the renderer child process reports, per spec.md §6.
const (
	ExitReady       = 200
	ExitNoMem       = 418
	ExitRenderFailed = 500 // also the -e flag value: "tell the renderer what counts as failure"
)

// Params is the subset of an order's params the renderer needs on its
// command line.
type Params struct {
	Lat    string
	Lon    string
	Scale  string
	W      string
	H      string
	Format string
}

// Spawner builds and launches renderer child processes against a fixed
// binary path, base URL and shared-memory id.
type Spawner struct {
	BinaryPath     string
	BaseURL        string // e.g. "http://127.0.0.1:8080", the front-end's own address
	SharedMemoryID string
	Logger         *zap.SugaredLogger
}

func NewSpawner(binaryPath, baseURL, sharedMemoryID string, logger *zap.SugaredLogger) *Spawner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Spawner{BinaryPath: binaryPath, BaseURL: baseURL, SharedMemoryID: sharedMemoryID, Logger: logger}
}

// BuildArgs renders the renderer CLI flags exactly as spec.md §6
// specifies: -u<base-url> -o<orderId> -x<lon> -y<lat> -s<scale> -w<w>
// -h<h> -f<format> -e<render-failed-code> -d<shared-memory-id>.
func (s *Spawner) BuildArgs(orderID int64, p Params) []string {
	return []string{
		"-u" + s.BaseURL,
		"-o" + strconv.FormatInt(orderID, 10),
		"-x" + p.Lon,
		"-y" + p.Lat,
		"-s" + p.Scale,
		"-w" + p.W,
		"-h" + p.H,
		"-f" + p.Format,
		"-e" + strconv.Itoa(ExitRenderFailed),
		"-d" + s.SharedMemoryID,
	}
}

// Process wraps a live child process and its eventual exit code.
type Process struct {
	OrderID int64
	cmd     *exec.Cmd
	done    chan int
}

// Spawn starts the renderer for orderID with params, and begins an
// asynchronous wait for its exit in a background goroutine — the Go
// analogue of Popen() plus a later non-blocking .poll(): the admission
// loop later calls Poll() without blocking rather than waiting on the
// child directly.
func (s *Spawner) Spawn(ctx context.Context, orderID int64, p Params) (*Process, error) {
	args := s.BuildArgs(orderID, p)
	cmd := exec.CommandContext(ctx, s.BinaryPath, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn renderer for order %d: %w", orderID, err)
	}
	s.Logger.Debugw("spawned renderer", "order_id", orderID, "pid", cmd.Process.Pid, "args", args)

	proc := &Process{OrderID: orderID, cmd: cmd, done: make(chan int, 1)}
	go func() {
		err := cmd.Wait()
		proc.done <- exitCode(cmd, err)
	}()
	return proc, nil
}

// Poll performs a non-blocking check for the child's termination,
// mirroring scheduler.py's `slot[1].poll() != None`. ok is false while
// the child is still running.
func (p *Process) Poll() (code int, ok bool) {
	select {
	case code = <-p.done:
		return code, true
	default:
		return 0, false
	}
}

// exitCode extracts the renderer's exit code. A child killed by a signal
// reports -1 (which the scheduler maps to render-failed like any other
// non-200/418 code); a process with no ProcessState at all is reported as
// ExitRenderFailed.
func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		return ExitRenderFailed
	}
	return ExitRenderFailed
}

// PrepareSharedMemory invokes the one-time `gis-control -s<id>` startup
// call required before any renderer spawns, per spec.md §6 "Startup side
// effect" / server.py's `subprocess.run(["gis-control", f'-s{shid}'])`.
func PrepareSharedMemory(ctx context.Context, sharedMemoryID string) error {
	cmd := exec.CommandContext(ctx, "gis-control", "-s"+sharedMemoryID)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("gis-control -s%s: %w", sharedMemoryID, err)
	}
	return nil
}
