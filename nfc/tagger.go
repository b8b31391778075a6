package nfc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nedpals/vxtag-agent/logging"
	"github.com/nedpals/vxtag-agent/notify"
)

// State is a step of a tag operation.
type State string

const (
	StateIdle       State = "idle"
	StateAcquiring  State = "acquiring"
	StateInspecting State = "inspecting"
	StateEncoding   State = "encoding"
	StateWriting    State = "writing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateReleasing  State = "releasing"
)

// Transition is reported to the state observer.
type Transition struct {
	From    State
	To      State
	Attempt int   // set while writing
	Err     error // set on Failed
}

// Alert titles shown to the user.
const (
	AlertWriteSucceeded = "Successfully wrote NDEF message"
	AlertWriteFailed    = "Failed to write NDEF message"
	AlertEncodeFailed   = "Failed to create NDEF message"
	AlertScanFailed     = "Failed to scan NFC tag"
	AlertNotWritable    = "Tag is not writable."
	AlertErrorTitle     = "Error"
)

// TaggerConfig configures a Tagger. Zero values pick defaults.
type TaggerConfig struct {
	Retry        RetryPolicy
	Alerter      notify.Alerter
	Logger       *logrus.Entry
	PayloadID    string
	Language     string
	WriteOptions WriteOptions
	// Encode builds the NDEF message for a payload; nil uses EncodePayload.
	Encode func(p Payload, lang string) ([]byte, error)
	// OnState, if set, receives every state transition.
	OnState func(Transition)
}

// WriteReport summarizes a write operation.
type WriteReport struct {
	Tag          *TagInfo `json:"tag,omitempty"`
	Attempts     int      `json:"attempts"`
	Bytes        int      `json:"bytes"`
	CleanupError string   `json:"cleanupError,omitempty"`
}

// Tagger runs the scan and write sequences against a Binding. Only one
// operation runs at a time; a concurrent call fails with Busy.
type Tagger struct {
	binding Binding
	cfg     TaggerConfig

	op sync.Mutex

	stateMu sync.Mutex
	state   State
}

// NewTagger creates a Tagger for the binding.
func NewTagger(binding Binding, cfg TaggerConfig) *Tagger {
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.For("nfc")
	}
	if cfg.Alerter == nil {
		cfg.Alerter = &notify.LogAlerter{Logger: cfg.Logger}
	}
	if cfg.PayloadID == "" {
		cfg.PayloadID = PayloadID
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.Encode == nil {
		cfg.Encode = EncodePayload
	}
	return &Tagger{binding: binding, cfg: cfg, state: StateIdle}
}

// State returns the current state.
func (t *Tagger) State() State {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.state
}

func (t *Tagger) transition(to State, attempt int, err error) {
	t.stateMu.Lock()
	from := t.state
	t.state = to
	t.stateMu.Unlock()

	if t.cfg.OnState != nil {
		t.cfg.OnState(Transition{From: from, To: to, Attempt: attempt, Err: err})
	}
}

func (t *Tagger) scope() Scope {
	return Scope{
		Binding: t.binding,
		Tech:    TechNdef,
		Logger:  t.cfg.Logger,
		BeforeRelease: func(err error) {
			if err != nil {
				t.transition(StateFailed, 0, err)
			} else {
				t.transition(StateSucceeded, 0, nil)
			}
			t.transition(StateReleasing, 0, nil)
		},
	}
}

// finish returns to Idle, passing through Failed when the scope never ran
// its release hook (Busy acquisition). Scan and Write defer it so a panic
// in the binding still leaves the tagger Idle.
func (t *Tagger) finish(err error) {
	if t.State() != StateReleasing {
		t.transition(StateFailed, 0, err)
	}
	t.transition(StateIdle, 0, nil)
}

// Scan reads the presented tag's metadata and logs it. Failures are
// alerted and returned; they are never retried.
func (t *Tagger) Scan(ctx context.Context) (*TagInfo, error) {
	if !t.op.TryLock() {
		err := NewBusyError("Scan")
		t.cfg.Alerter.Alert(notify.Error(AlertScanFailed, err.Error()))
		return nil, err
	}
	defer t.op.Unlock()

	log := t.cfg.Logger
	var info *TagInfo
	var err, cleanupErr error
	defer func() { t.finish(err) }()

	t.transition(StateAcquiring, 0, nil)
	err, cleanupErr = t.scope().Run(ctx, func(ctx context.Context) error {
		t.transition(StateInspecting, 0, nil)
		var err error
		info, err = t.binding.GetTag(ctx)
		if err != nil {
			return err
		}
		if doc, jerr := json.MarshalIndent(info, "", "  "); jerr == nil {
			log.Infof("Tag found:\n%s", doc)
		}
		return nil
	})

	if cleanupErr != nil {
		log.WithError(cleanupErr).Warn("Scan finished with a release failure")
	}
	if err != nil {
		log.WithError(err).Warn("Scan failed")
		t.cfg.Alerter.Alert(notify.Error(AlertScanFailed, err.Error()))
		return nil, err
	}
	return info, nil
}

// Write stores message as the payload's text record on the presented tag.
// The technology is released exactly once whatever happens; a release
// failure is recorded on the report and never replaces the write's error.
func (t *Tagger) Write(ctx context.Context, message string) (*WriteReport, error) {
	if !t.op.TryLock() {
		err := NewBusyError("Write")
		t.cfg.Alerter.Alert(notify.Error(AlertWriteFailed, err.Error()))
		return nil, err
	}
	defer t.op.Unlock()

	log := t.cfg.Logger
	report := &WriteReport{}
	alerted := false
	var err, cleanupErr error
	defer func() { t.finish(err) }()

	t.transition(StateAcquiring, 0, nil)
	err, cleanupErr = t.scope().Run(ctx, func(ctx context.Context) error {
		t.transition(StateInspecting, 0, nil)
		info, err := t.binding.GetTag(ctx)
		if err != nil {
			return err
		}
		report.Tag = info

		if !info.IsWritable {
			log.Warnf("Tag %s is not writable", info.ID)
			t.cfg.Alerter.Alert(notify.Error(AlertErrorTitle, AlertNotWritable))
			alerted = true
			return NewTagNotWritableError("Write", info.ID)
		}

		t.transition(StateEncoding, 0, nil)
		msg, err := t.cfg.Encode(Payload{ID: t.cfg.PayloadID, Message: message}, t.cfg.Language)
		if err != nil {
			log.WithError(err).Error("Failed to create NDEF message")
			t.cfg.Alerter.Alert(notify.Error(AlertEncodeFailed, ""))
			alerted = true
			if !errors.Is(err, ErrEncodeFailure) {
				err = NewEncodeError("Write", err)
			}
			return err
		}
		report.Bytes = len(msg)

		attempts, err := t.cfg.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
			t.transition(StateWriting, attempt, nil)
			return t.binding.WriteNdefMessage(ctx, msg, t.cfg.WriteOptions)
		}, func(attempt int, err error) {
			log.WithError(err).Warnf("Write attempt %d/%d failed", attempt, t.cfg.Retry.MaxAttempts)
		})
		report.Attempts = attempts

		var retryErr *RetryError
		if errors.As(err, &retryErr) {
			return NewWriteExhaustedError(retryErr.Attempts, retryErr.Err)
		}
		return err
	})

	if cleanupErr != nil {
		report.CleanupError = cleanupErr.Error()
	}
	if err != nil {
		log.WithError(err).Warn("Write failed")
		if !alerted {
			t.cfg.Alerter.Alert(notify.Error(AlertWriteFailed, err.Error()))
		}
		return report, err
	}

	log.Infof("Wrote %d bytes to tag %s in %d attempt(s)", report.Bytes, report.Tag.ID, report.Attempts)
	t.cfg.Alerter.Alert(notify.Info(AlertWriteSucceeded, ""))
	return report, nil
}
