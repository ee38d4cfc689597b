// Package script runs Python code in a shared external interpreter.
//
// The interpreter process is started by the first Acquire and stopped when
// the last Interpreter is closed. Every Interpreter executes in its own
// global namespace, so scripts run through one do not see the names defined
// through another.
package script

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
)

// DefaultPython is the interpreter binary used unless WithPython is given.
const DefaultPython = "python3"

// ErrClosed is returned by operations on a closed Interpreter.
var ErrClosed = errors.New("interpreter closed")

// Error is a Python exception raised while executing a request.
type Error struct {
	Op        string
	Traceback string
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Exception()
}

// Exception returns the last line of the traceback, e.g.
// "NameError: name 'f' is not defined".
func (e *Error) Exception() string {
	lines := strings.Split(strings.TrimSpace(e.Traceback), "\n")
	return lines[len(lines)-1]
}

// Option configures Acquire.
type Option func(*config)

type config struct {
	python string
	stderr io.Writer
}

// WithPython selects the interpreter binary. It only takes effect when the
// call starts the shared interpreter.
func WithPython(path string) Option {
	return func(c *config) {
		if path != "" {
			c.python = path
		}
	}
}

// WithStderr redirects the interpreter's stderr, which also receives
// anything scripts print.
func WithStderr(w io.Writer) Option {
	return func(c *config) {
		c.stderr = w
	}
}

// coordinator owns the shared interpreter and counts its consumers.
type coordinator struct {
	mu        sync.Mutex
	consumers int
	nextID    int
	proc      *process
}

var shared coordinator

func (c *coordinator) acquire(cfg config) (*process, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.proc == nil {
		proc, err := startProcess(cfg.python, cfg.stderr)
		if err != nil {
			return nil, 0, err
		}
		c.proc = proc
	}
	c.consumers++
	c.nextID++
	return c.proc, c.nextID, nil
}

func (c *coordinator) release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consumers--
	if c.consumers > 0 {
		return nil
	}
	proc := c.proc
	c.proc = nil
	return proc.stop()
}

func (c *coordinator) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consumers
}

// Interpreter is one consumer of the shared interpreter with its own global
// namespace.
type Interpreter struct {
	id     int
	proc   *process
	log    logr.Logger
	mu     sync.Mutex
	closed bool
}

// Acquire registers a consumer, starting the shared interpreter if needed,
// and opens a fresh namespace. The logger is taken from ctx.
func Acquire(ctx context.Context, opts ...Option) (*Interpreter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := config{python: DefaultPython}
	for _, opt := range opts {
		opt(&cfg)
	}

	proc, id, err := shared.acquire(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "acquiring interpreter")
	}
	ip := &Interpreter{
		id:   id,
		proc: proc,
		log:  logr.FromContextOrDiscard(ctx).WithValues("interpreter", id),
	}
	if _, err := ip.send(ctx, request{Op: "open"}); err != nil {
		_ = shared.release()
		return nil, err
	}
	ip.log.V(1).Info("acquired interpreter", "consumers", shared.active())
	return ip, nil
}

// RunScript executes src in the interpreter's namespace.
func (ip *Interpreter) RunScript(ctx context.Context, src string) error {
	_, err := ip.send(ctx, request{Op: "run", Src: src})
	return err
}

// RunFile executes the Python file at path in the interpreter's namespace.
func (ip *Interpreter) RunFile(ctx context.Context, path string) error {
	ip.log.V(1).Info("running file", "path", path)
	_, err := ip.send(ctx, request{Op: "file", Name: path})
	return err
}

// Get returns the value bound to a global name.
func (ip *Interpreter) Get(ctx context.Context, name string) (Value, error) {
	return ip.send(ctx, request{Op: "get", Name: name})
}

// Call calls the global callable name with args and returns its result.
func (ip *Interpreter) Call(ctx context.Context, name string, args ...Value) (Value, error) {
	wire := make([]wireValue, len(args))
	for i, a := range args {
		w, err := toWire(a)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d of %s", i, name)
		}
		wire[i] = w
	}
	return ip.send(ctx, request{Op: "call", Name: name, Args: wire})
}

// Close drops the namespace and releases the consumer. The last Close stops
// the shared interpreter. Closing twice is a no-op.
func (ip *Interpreter) Close() error {
	ip.mu.Lock()
	if ip.closed {
		ip.mu.Unlock()
		return nil
	}
	ip.closed = true
	ip.mu.Unlock()

	_, closeErr := ip.proc.do(request{Op: "close", Ctx: ip.id})
	err := shared.release()
	ip.log.V(1).Info("released interpreter")
	if closeErr != nil {
		return closeErr
	}
	return err
}

func (ip *Interpreter) send(ctx context.Context, req request) (Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ip.mu.Lock()
	closed := ip.closed
	ip.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	req.Ctx = ip.id
	resp, err := ip.proc.do(req)
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &Error{Op: req.Op, Traceback: resp.Error}
	}
	return fromWire(resp.Value), nil
}
