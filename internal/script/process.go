package script

import (
	"bufio"
	_ "embed"
	"io"
	"os"
	"os/exec"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

//go:embed driver.py
var driverSource string

type request struct {
	Op   string      `json:"op"`
	Ctx  int         `json:"ctx"`
	Src  string      `json:"src,omitempty"`
	Name string      `json:"name,omitempty"`
	Args []wireValue `json:"args,omitempty"`
}

type response struct {
	OK    bool      `json:"ok"`
	Value wireValue `json:"value"`
	Error string    `json:"error,omitempty"`
}

// process is a running Python interpreter speaking one JSON request and one
// JSON response per line.
type process struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	broken error
}

func startProcess(python string, stderr io.Writer) (*process, error) {
	if stderr == nil {
		stderr = os.Stderr
	}
	cmd := exec.Command(python, "-u", "-c", driverSource)
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "creating interpreter stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "creating interpreter stdout")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "starting %s", python)
	}
	return &process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
	}, nil
}

// do sends req and waits for its response. A transport failure marks the
// process broken; later requests fail with the same error.
func (p *process) do(req request) (response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.broken != nil {
		return response{}, p.broken
	}
	line, err := json.Marshal(req)
	if err != nil {
		return response{}, errors.Wrap(err, "encoding request")
	}
	if _, err := p.stdin.Write(append(line, '\n')); err != nil {
		p.broken = errors.Wrap(err, "writing to interpreter")
		return response{}, p.broken
	}
	out, err := p.stdout.ReadBytes('\n')
	if err != nil {
		p.broken = errors.Wrap(err, "reading from interpreter")
		return response{}, p.broken
	}
	var resp response
	if err := json.Unmarshal(out, &resp); err != nil {
		return response{}, errors.Wrap(err, "decoding response")
	}
	return resp, nil
}

// stop closes the request stream and waits for the interpreter to exit.
func (p *process) stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.broken = ErrClosed
	if err := p.stdin.Close(); err != nil {
		return errors.Wrap(err, "closing interpreter stdin")
	}
	if err := p.cmd.Wait(); err != nil {
		return errors.Wrap(err, "waiting for interpreter")
	}
	return nil
}
