package preparation

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"prep-service/internal/model"
)

var (
	ErrNoCapture       = errors.New("no photo capture is open")
	ErrCaptureReleased = errors.New("photo capture already released")
	ErrPhotoAttached   = errors.New("photo capture already holds a photo")
	ErrPhotoTooLarge   = errors.New("photo is too large")
)

// CaptureTracker enforces one open photo capture per user. Opening a new capture
// releases the previous one; nothing resumes a released capture.
type CaptureTracker struct {
	mu       sync.Mutex
	captures map[string]*Capture
}

func NewCaptureTracker() *CaptureTracker {
	return &CaptureTracker{captures: make(map[string]*Capture)}
}

type Capture struct {
	ID            uuid.UUID
	UserID        string
	PreparationID string
	Step          model.StepKind
	OpenedAt      time.Time

	tracker  *CaptureTracker
	mu       sync.Mutex
	photo    io.ReadCloser
	released bool
}

func (t *CaptureTracker) Open(userID, preparationID string, step model.StepKind, now time.Time) *Capture {
	t.mu.Lock()
	c, previous := t.replace(userID, preparationID, step, now)
	t.mu.Unlock()

	if previous != nil {
		previous.release()
	}
	return c
}

// Acquire returns the user's open capture for the step, opening one when the user has
// none or is capturing something else.
func (t *CaptureTracker) Acquire(userID, preparationID string, step model.StepKind, now time.Time) *Capture {
	t.mu.Lock()
	if c, ok := t.captures[userID]; ok && c.Matches(preparationID, step) {
		t.mu.Unlock()
		return c
	}
	c, previous := t.replace(userID, preparationID, step, now)
	t.mu.Unlock()

	if previous != nil {
		previous.release()
	}
	return c
}

// replace must be called with t.mu held.
func (t *CaptureTracker) replace(userID, preparationID string, step model.StepKind, now time.Time) (*Capture, *Capture) {
	c := &Capture{
		ID:            uuid.New(),
		UserID:        userID,
		PreparationID: preparationID,
		Step:          step,
		OpenedAt:      now,
		tracker:       t,
	}
	previous := t.captures[userID]
	t.captures[userID] = c
	return c, previous
}

func (t *CaptureTracker) Current(userID string) (*Capture, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.captures[userID]
	return c, ok
}

// Cancel discards the user's open capture and its photo.
func (t *CaptureTracker) Cancel(userID string) error {
	t.mu.Lock()
	c, ok := t.captures[userID]
	delete(t.captures, userID)
	t.mu.Unlock()

	if !ok {
		return ErrNoCapture
	}
	c.release()
	return nil
}

// CloseAll releases every open capture.
func (t *CaptureTracker) CloseAll() {
	t.mu.Lock()
	open := t.captures
	t.captures = make(map[string]*Capture)
	t.mu.Unlock()

	for _, c := range open {
		c.release()
	}
}

func (t *CaptureTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.captures)
}

func (t *CaptureTracker) forget(c *Capture) {
	t.mu.Lock()
	if t.captures[c.UserID] == c {
		delete(t.captures, c.UserID)
	}
	t.mu.Unlock()
}

func (c *Capture) Matches(preparationID string, step model.StepKind) bool {
	return c.PreparationID == preparationID && c.Step == step
}

// Attach hands the photo to the capture, which closes it on release. A capture takes
// one photo; when Attach fails the caller still owns photo.
func (c *Capture) Attach(photo io.ReadCloser) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return ErrCaptureReleased
	}
	if c.photo != nil {
		return ErrPhotoAttached
	}
	c.photo = photo
	return nil
}

// ReadPhoto reads the attached photo, refusing anything above limit bytes (limit <= 0 disables the check).
func (c *Capture) ReadPhoto(limit int64) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil, ErrCaptureReleased
	}
	if c.photo == nil {
		return nil, ErrPhotoRequired
	}
	return readLimited(c.photo, limit)
}

// ReadUpload reads a photo no capture owns and closes it.
func ReadUpload(photo io.ReadCloser, limit int64) ([]byte, error) {
	if photo == nil {
		return nil, ErrPhotoRequired
	}
	defer photo.Close()
	return readLimited(photo, limit)
}

func readLimited(photo io.Reader, limit int64) ([]byte, error) {
	reader := photo
	if limit > 0 {
		reader = io.LimitReader(photo, limit+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, ErrPhotoTooLarge
	}
	if len(data) == 0 {
		return nil, ErrPhotoRequired
	}
	return data, nil
}

// Release closes the photo and drops the capture from its tracker. Safe to call more than once.
func (c *Capture) Release() {
	c.release()
	if c.tracker != nil {
		c.tracker.forget(c)
	}
}

func (c *Capture) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

func (c *Capture) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.released = true
	if c.photo != nil {
		_ = c.photo.Close()
		c.photo = nil
	}
}
