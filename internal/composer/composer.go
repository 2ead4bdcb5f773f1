// Package composer holds the interactive state of the broadcast form: the draft
// message, the selected groups and the two-phase send (request, then confirm).
package composer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/foxzi/broadcast/internal/group"
)

const (
	// MaxLength is the advisory message length shown next to the counter.
	// It is not enforced.
	MaxLength = 1000

	// PreviewLength is the number of characters shown in the confirmation
	PreviewLength = 100

	previewEllipsis = "..."
)

// User-facing validation messages
const (
	MsgNoMessage = "Please write a message."
	MsgNoGroups  = "Select at least one group."
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrNoMessage     = fmt.Errorf("%w: empty message", ErrValidation)
	ErrNoGroups      = fmt.Errorf("%w: no group selected", ErrValidation)
	ErrBusy          = errors.New("a send is already in progress")
	ErrNotConfirming = errors.New("no send is awaiting confirmation")
)

// Sender delivers a message to a list of group ids
type Sender interface {
	Broadcast(ctx context.Context, message string, groups []string) (json.RawMessage, error)
}

// State is the submission lifecycle state
type State int

const (
	StateIdle State = iota
	StateAwaitingConfirmation
	StateSending
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateSending:
		return "sending"
	default:
		return "unknown"
	}
}

// OutcomeKind tells success from failure
type OutcomeKind int

const (
	OutcomeNone OutcomeKind = iota
	OutcomeSuccess
	OutcomeFailure
)

// Outcome is the result of the latest submission attempt
type Outcome struct {
	Kind OutcomeKind
	// Count is the number of groups targeted, set on success
	Count int
	// Text is the message shown to the user
	Text string
	// Err is the underlying cause, set on failure
	Err error
}

func (o Outcome) IsSuccess() bool { return o.Kind == OutcomeSuccess }
func (o Outcome) IsFailure() bool { return o.Kind == OutcomeFailure }
func (o Outcome) IsZero() bool    { return o.Kind == OutcomeNone }

func successOutcome(count int) Outcome {
	return Outcome{
		Kind:  OutcomeSuccess,
		Count: count,
		Text:  fmt.Sprintf("Message sent to %d group(s)!", count),
	}
}

func failureOutcome(text string, err error) Outcome {
	return Outcome{Kind: OutcomeFailure, Text: text, Err: err}
}

// Confirmation is what the user is asked to approve before sending
type Confirmation struct {
	Count   int
	Preview string
}

// staged is the exact message and group list a confirmation covers
type staged struct {
	conf    Confirmation
	message string
	groups  []string
}

// Composer owns the draft, the selection and the send lifecycle.
// It is safe for concurrent use.
type Composer struct {
	catalog *group.Catalog
	sender  Sender
	logger  *slog.Logger

	mu       sync.Mutex
	state    State
	message  string
	selected map[string]struct{}
	outcome  Outcome
	pending  *staged
}

// New creates a composer over a fixed catalog
func New(catalog *group.Catalog, sender Sender, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		catalog:  catalog,
		sender:   sender,
		logger:   logger,
		selected: make(map[string]struct{}),
	}
}

// Toggle flips membership of id in the selection
func (c *Composer) Toggle(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.selected[id]; ok {
		delete(c.selected, id)
		return
	}
	c.selected[id] = struct{}{}
}

// SetSelected adds id to the selection when checked is true, otherwise removes it
func (c *Composer) SetSelected(id string, checked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if checked {
		c.selected[id] = struct{}{}
		return
	}
	delete(c.selected, id)
}

// ToggleAll selects every group when checked is true, otherwise clears the selection
func (c *Composer) ToggleAll(checked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.selected = make(map[string]struct{}, c.catalog.Len())
	if !checked {
		return
	}
	for _, id := range c.catalog.IDs() {
		c.selected[id] = struct{}{}
	}
}

// SetSelection replaces the selection. Ids outside the catalog are ignored.
func (c *Composer) SetSelection(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.selected = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if c.catalog.Has(id) {
			c.selected[id] = struct{}{}
		}
	}
}

// SetMessage replaces the draft message
func (c *Composer) SetMessage(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.message = message
}

// Selected returns the selected ids in catalog order
func (c *Composer) Selected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectedLocked()
}

// Message returns the current draft
func (c *Composer) Message() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.message
}

// State returns the lifecycle state
func (c *Composer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether a send is in flight
func (c *Composer) Busy() bool {
	return c.State() == StateSending
}

// Outcome returns the result of the latest attempt
func (c *Composer) Outcome() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// RequestSend validates the draft and selection and, if both are usable,
// stages them for confirmation. Nothing is sent. Later edits to the draft
// do not change what is staged.
func (c *Composer) RequestSend() (*Confirmation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateSending {
		return nil, ErrBusy
	}

	if err := c.validateLocked(); err != nil {
		c.state = StateIdle
		c.pending = nil
		return nil, err
	}

	groups := c.selectedLocked()
	c.state = StateAwaitingConfirmation
	c.pending = &staged{
		conf: Confirmation{
			Count:   len(groups),
			Preview: Preview(c.message),
		},
		message: c.message,
		groups:  groups,
	}

	conf := c.pending.conf
	return &conf, nil
}

// CancelConfirmation closes the confirmation step. Draft and selection stay as they are.
func (c *Composer) CancelConfirmation() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateAwaitingConfirmation {
		c.state = StateIdle
	}
	c.pending = nil
}

// ConfirmSend sends the message and groups staged by RequestSend. It blocks
// until the sender returns.
// Sender failures are reported through the returned Outcome; the error is
// only set when there was nothing to confirm.
func (c *Composer) ConfirmSend(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	switch c.state {
	case StateSending:
		c.mu.Unlock()
		return Outcome{}, ErrBusy
	case StateIdle:
		c.mu.Unlock()
		return Outcome{}, ErrNotConfirming
	}

	message, groups := c.pending.message, c.pending.groups
	c.pending = nil
	c.state = StateSending
	c.outcome = Outcome{}
	c.mu.Unlock()

	err := c.dispatch(ctx, message, groups)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateIdle
	if err != nil {
		c.logger.Warn("broadcast failed", "groups", len(groups), "error", err)
		c.outcome = failureOutcome("Send failed: "+err.Error(), err)
		return c.outcome, nil
	}

	c.logger.Info("broadcast sent", "groups", len(groups))
	c.outcome = successOutcome(len(groups))
	c.message = ""
	c.selected = make(map[string]struct{})
	return c.outcome, nil
}

// dispatch calls the sender and turns a panic into an error so the busy
// state is always released
func (c *Composer) dispatch(ctx context.Context, message string, groups []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected error: %v", r)
		}
	}()
	_, err = c.sender.Broadcast(ctx, message, groups)
	return err
}

func (c *Composer) validateLocked() error {
	if strings.TrimSpace(c.message) == "" {
		c.outcome = failureOutcome(MsgNoMessage, ErrNoMessage)
		return ErrNoMessage
	}
	if len(c.selectedLocked()) == 0 {
		c.outcome = failureOutcome(MsgNoGroups, ErrNoGroups)
		return ErrNoGroups
	}
	return nil
}

func (c *Composer) selectedLocked() []string {
	return c.catalog.Order(c.selected)
}

// Preview truncates message to PreviewLength characters, marking the cut
func Preview(message string) string {
	if utf8.RuneCountInString(message) <= PreviewLength {
		return message
	}
	runes := []rune(message)
	return string(runes[:PreviewLength]) + previewEllipsis
}
