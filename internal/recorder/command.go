package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Rrens/kaif-chat/internal/config"
	"github.com/Rrens/kaif-chat/internal/domain"
)

const stopGrace = 5 * time.Second

// CommandCapture records by running an external capture program that
// writes the encoded stream to stdout. It also serves as the permission
// probe by checking access to the device node.
type CommandCapture struct {
	command string
	args    []string
	device  string
}

// NewCommandCapture creates a capture backed by the configured command
func NewCommandCapture(cfg config.RecorderConfig) *CommandCapture {
	return &CommandCapture{
		command: cfg.Command,
		args:    cfg.Args,
		device:  cfg.Device,
	}
}

// Query reports granted when the device node is readable, denied when access
// is refused and idle when there is no device node to ask about
func (c *CommandCapture) Query(ctx context.Context) (Permission, error) {
	if c.device == "" {
		return PermissionIdle, nil
	}

	f, err := os.Open(c.device)
	switch {
	case err == nil:
		f.Close()
		return PermissionGranted, nil
	case errors.Is(err, os.ErrPermission):
		return PermissionDenied, nil
	case errors.Is(err, os.ErrNotExist):
		return PermissionIdle, nil
	default:
		return "", fmt.Errorf("failed to probe %s: %w", c.device, err)
	}
}

func (c *CommandCapture) Open(ctx context.Context) (CaptureHandle, error) {
	if c.device != "" {
		f, err := os.Open(c.device)
		if err != nil {
			if errors.Is(err, os.ErrPermission) {
				return nil, fmt.Errorf("%w: %s", domain.ErrPermissionDenied, c.device)
			}
			return nil, fmt.Errorf("failed to open %s: %w", c.device, err)
		}
		f.Close()
	}

	path, err := exec.LookPath(c.command)
	if err != nil {
		return nil, fmt.Errorf("capture command not found: %w", err)
	}

	return &commandHandle{path: path, args: c.args}, nil
}

type commandHandle struct {
	path string
	args []string

	mu     sync.Mutex
	cmd    *exec.Cmd
	out    bytes.Buffer
	errOut bytes.Buffer
	waited chan error
}

func (h *commandHandle) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cmd != nil {
		return errors.New("capture already started")
	}

	cmd := exec.Command(h.path, h.args...)
	cmd.Stdout = &h.out
	cmd.Stderr = &h.errOut
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	h.cmd = cmd
	h.waited = make(chan error, 1)
	go func() { h.waited <- cmd.Wait() }()
	return nil
}

func (h *commandHandle) Stop() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cmd == nil {
		return nil, errors.New("capture not started")
	}

	// Interrupt lets the encoder flush its trailer before exiting
	h.cmd.Process.Signal(os.Interrupt)

	var err error
	select {
	case err = <-h.waited:
	case <-time.After(stopGrace):
		h.cmd.Process.Kill()
		err = <-h.waited
	}
	h.cmd = nil

	if h.out.Len() == 0 {
		msg := strings.TrimSpace(h.errOut.String())
		if strings.Contains(strings.ToLower(msg), "permission denied") {
			return nil, fmt.Errorf("%w: %s", domain.ErrPermissionDenied, msg)
		}
		if err != nil {
			return nil, fmt.Errorf("capture produced no audio: %w: %s", err, msg)
		}
		return nil, errors.New("capture produced no audio")
	}

	data := make([]byte, h.out.Len())
	copy(data, h.out.Bytes())
	return data, nil
}

func (h *commandHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cmd == nil {
		return nil
	}

	h.cmd.Process.Kill()
	<-h.waited
	h.cmd = nil
	return nil
}
