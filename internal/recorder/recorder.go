package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Rrens/kaif-chat/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Permission is the observed microphone permission
type Permission string

const (
	PermissionIdle    Permission = "idle"
	PermissionPending Permission = "pending"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Status is the recording lifecycle state
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRecording Status = "recording"
	StatusStopped   Status = "stopped"
)

// PermissionProbe reads the platform permission without prompting the user
type PermissionProbe interface {
	Query(ctx context.Context) (Permission, error)
}

// AudioCapture acquires the capture device. Open may block while the user
// is prompted and returns an error wrapping domain.ErrPermissionDenied on refusal.
type AudioCapture interface {
	Open(ctx context.Context) (CaptureHandle, error)
}

// CaptureHandle is an exclusively owned capture device
type CaptureHandle interface {
	Start() error
	// Stop finalizes everything captured since Start
	Stop() ([]byte, error)
	// Close releases the device; safe to call more than once
	Close() error
}

// Artifact is a finished recording
type Artifact struct {
	Data      []byte
	MimeType  string
	Extension string
	Duration  int // seconds
}

// Snapshot is a point-in-time view of the recorder
type Snapshot struct {
	Permission Permission `json:"permission"`
	Status     Status     `json:"status"`
	Elapsed    int        `json:"elapsed_seconds"`
	HasPending bool       `json:"has_pending"`
}

// Options configures a Recorder
type Options struct {
	MimeType  string
	Extension string
	Clock     clockwork.Clock
}

// Recorder owns the single recording session: permission negotiation, the
// device handle and the elapsed-seconds ticker.
type Recorder struct {
	probe   PermissionProbe
	capture AudioCapture
	clock   clockwork.Clock
	mime    string
	ext     string

	mu         sync.Mutex
	permission Permission
	status     Status
	elapsed    int
	starting   bool
	closed     bool
	handle     CaptureHandle
	ticker     clockwork.Ticker
	tickerDone chan struct{}
	pending    *Artifact
}

// New creates an idle recorder
func New(probe PermissionProbe, capture AudioCapture, opts Options) *Recorder {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.MimeType == "" {
		opts.MimeType = "audio/webm"
	}
	if opts.Extension == "" {
		opts.Extension = "webm"
	}
	return &Recorder{
		probe:      probe,
		capture:    capture,
		clock:      opts.Clock,
		mime:       opts.MimeType,
		ext:        opts.Extension,
		permission: PermissionIdle,
		status:     StatusIdle,
	}
}

// QueryPermission refreshes the observed permission without prompting.
// A failed query is reported as denied.
func (r *Recorder) QueryPermission(ctx context.Context) Permission {
	p, err := r.probe.Query(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Microphone permission query failed")
		p = PermissionDenied
	}
	r.ObservePermission(p)
	return p
}

// RequestAndStart acquires the device and begins recording
func (r *Recorder) RequestAndStart(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return domain.ErrRecorderClosed
	}
	if r.status != StatusIdle || r.starting {
		r.mu.Unlock()
		return domain.ErrRecorderBusy
	}
	if r.permission == PermissionDenied {
		r.mu.Unlock()
		return domain.ErrPermissionDenied
	}

	prior := r.permission
	if prior != PermissionGranted {
		r.permission = PermissionPending
	}
	r.starting = true
	r.mu.Unlock()

	handle, err := r.capture.Open(ctx)
	if err == nil {
		if err = handle.Start(); err != nil {
			handle.Close()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.starting = false

	if err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			r.permission = PermissionDenied
			return err
		}
		if r.permission != PermissionDenied {
			r.permission = prior
		}
		return fmt.Errorf("%w: %w", domain.ErrDeviceUnavailable, err)
	}

	// Closed or revoked while the device was being acquired
	if r.closed || r.permission == PermissionDenied {
		handle.Close()
		if r.closed {
			return domain.ErrRecorderClosed
		}
		return domain.ErrPermissionDenied
	}

	r.handle = handle
	r.permission = PermissionGranted
	r.status = StatusRecording
	r.elapsed = 0
	r.pending = nil
	r.startTickerLocked()

	log.Debug().Msg("Recording started")
	return nil
}

// Stop finalizes the recording into a pending artifact. It is a no-op
// unless recording.
func (r *Recorder) Stop() (*Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusRecording {
		return nil, nil
	}

	r.stopTickerLocked()
	handle := r.handle
	r.handle = nil

	data, err := handle.Stop()
	if cerr := handle.Close(); cerr != nil {
		log.Warn().Err(cerr).Msg("Failed to release capture device")
	}
	if err != nil {
		r.status = StatusIdle
		r.elapsed = 0
		if errors.Is(err, domain.ErrPermissionDenied) {
			r.permission = PermissionDenied
			log.Warn().Err(err).Msg("Microphone permission revoked while recording")
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrDeviceUnavailable, err)
	}

	r.pending = &Artifact{
		Data:      data,
		MimeType:  r.mime,
		Extension: r.ext,
		Duration:  r.elapsed,
	}
	r.status = StatusStopped

	log.Debug().Int("duration", r.elapsed).Int("bytes", len(data)).Msg("Recording stopped")
	return r.pending, nil
}

// Discard drops any recording or pending artifact and returns to idle
func (r *Recorder) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
}

// ObservePermission applies an out-of-band permission change. Revocation
// while recording abandons the recording.
func (r *Recorder) ObservePermission(p Permission) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// An in-flight request owns the pending state until it resolves
	if r.starting && p != PermissionDenied {
		return
	}

	r.permission = p
	if p == PermissionDenied && r.status == StatusRecording {
		log.Info().Msg("Microphone permission revoked while recording")
		r.resetLocked()
	}
}

// Close releases the device and ticker; later starts fail
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	return r.resetLocked()
}

// Snapshot returns the current state
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Snapshot{
		Permission: r.permission,
		Status:     r.status,
		Elapsed:    r.elapsed,
		HasPending: r.pending != nil,
	}
}

// Pending returns the finished recording awaiting submission, if any
func (r *Recorder) Pending() *Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

func (r *Recorder) resetLocked() error {
	r.stopTickerLocked()

	var err error
	if r.handle != nil {
		err = r.handle.Close()
		r.handle = nil
	}

	r.pending = nil
	r.elapsed = 0
	r.status = StatusIdle
	return err
}

func (r *Recorder) startTickerLocked() {
	ticker := r.clock.NewTicker(time.Second)
	done := make(chan struct{})
	r.ticker = ticker
	r.tickerDone = done

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.Chan():
				r.mu.Lock()
				if r.tickerDone == done {
					r.elapsed++
				}
				r.mu.Unlock()
			}
		}
	}()
}

func (r *Recorder) stopTickerLocked() {
	if r.ticker == nil {
		return
	}
	r.ticker.Stop()
	close(r.tickerDone)
	r.ticker = nil
	r.tickerDone = nil
}
