package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"eventpass/internal/model"
	"eventpass/internal/ticket"
)

var (
	ErrPermissionDenied = errors.New("camera access denied")
	ErrUnreadableFrame  = errors.New("camera frame could not be read")
	ErrAlreadyRunning   = errors.New("scan loop already running")
)

// FrameSource blocks until the next camera frame is available.
type FrameSource interface {
	Next(ctx context.Context) (image.Image, error)
}

// Decoder extracts a code from a frame, returning ticket.ErrNoCode when the
// frame has none.
type Decoder interface {
	Decode(img image.Image) (string, error)
}

type Validator interface {
	Validate(ctx context.Context, token string) (*model.Attendee, error)
}

// Outcome is the terminal result of one scan.
type Outcome struct {
	Token    string
	Attendee *model.Attendee
	Err      error
}

// Loop reads frames, decodes them and forwards codes for validation. At most
// one validation is in flight; a code that was just validated is ignored until
// Restart or until a different code shows up.
type Loop struct {
	frames    FrameSource
	decoder   Decoder
	validator Validator
	onOutcome func(Outcome)
	log       *zerolog.Logger
	timeout   time.Duration

	mu sync.Mutex
	// gen changes only on Stop; results of an older gen are dropped.
	gen      uint64
	run      uint64
	cancel   context.CancelFunc
	inFlight bool
	last     string
	wg       sync.WaitGroup
}

func NewLoop(frames FrameSource, decoder Decoder, validator Validator, onOutcome func(Outcome), log *zerolog.Logger) *Loop {
	return &Loop{
		frames:    frames,
		decoder:   decoder,
		validator: validator,
		onOutcome: onOutcome,
		log:       log,
		timeout:   15 * time.Second,
	}
}

// Run captures until ctx is done, Stop is called, or the camera fails. A
// camera failure is returned and is not retried; a validation already in
// flight still reports its outcome, and Run may be called again afterwards.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.cancel != nil {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.run++
	run, gen := l.run, l.gen
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		if l.run == run && l.gen == gen {
			l.cancel = nil
		}
		l.mu.Unlock()
		cancel()
	}()

	for {
		img, err := l.frames.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		code, err := l.decoder.Decode(img)
		if errors.Is(err, ticket.ErrNoCode) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnreadableFrame, err)
		}
		l.submit(gen, code)
	}
}

func (l *Loop) submit(gen uint64, code string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if gen != l.gen || l.inFlight || code == l.last {
		return
	}
	l.inFlight = true
	l.last = code

	l.wg.Add(1)
	go l.validate(gen, code)
}

// validate runs on its own context so Stop does not abort a request that was
// already sent.
func (l *Loop) validate(gen uint64, code string) {
	defer l.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	att, err := l.validator.Validate(ctx, code)

	l.mu.Lock()
	current := gen == l.gen
	if current {
		l.inFlight = false
	}
	l.mu.Unlock()

	if !current {
		l.log.Debug().Msg("discarding validation result of stopped scan")
		return
	}
	l.onOutcome(Outcome{Token: code, Attendee: att, Err: err})
}

// Restart lets the last code be validated again.
func (l *Loop) Restart() {
	l.mu.Lock()
	l.last = ""
	l.mu.Unlock()
}

// Stop ends frame acquisition. A validation already in flight completes but
// its result is dropped.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.gen++
	l.inFlight = false
	l.last = ""
}

// Wait blocks until validations started by the loop have returned.
func (l *Loop) Wait() {
	l.wg.Wait()
}
