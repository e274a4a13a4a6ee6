// Package surface decides how sanitized suggestions reach the single
// presentation surface an editor shows.
package surface

import (
	"sync"

	codelet "github.com/Paranoid-AF/codelet"
	"github.com/Paranoid-AF/codelet/sanitize"
)

// Presenter is implemented by the presentation layer.
type Presenter interface {
	// Show creates a new surface listing suggestions.
	Show(suggestions []string)
	// Update replaces the contents of the visible surface.
	Update(suggestions []string)
	// Hide removes the visible surface.
	Hide()
	// Visible reports whether a surface is currently shown.
	Visible() bool
}

// Controller owns the create-versus-update decision for one presenter.
// It is safe for concurrent use.
type Controller struct {
	presenter Presenter
	strategy  sanitize.Strategy

	mu      sync.Mutex
	current []string
}

// NewController creates a controller. A nil strategy selects line membership.
func NewController(p Presenter, strategy sanitize.Strategy) *Controller {
	if strategy == nil {
		strategy = sanitize.LineMembership
	}
	return &Controller{presenter: p, strategy: strategy}
}

// SetStrategy replaces the sanitizer used by later ApplySelected calls.
// A nil strategy selects line membership.
func (c *Controller) SetStrategy(strategy sanitize.Strategy) {
	if strategy == nil {
		strategy = sanitize.LineMembership
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strategy = strategy
}

// Present shows suggestions, updating the visible surface in place when
// there is one. An empty list changes nothing.
func (c *Controller) Present(suggestions []string) {
	if len(suggestions) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = append([]string(nil), suggestions...)
	if c.presenter.Visible() {
		c.presenter.Update(c.current)
		return
	}
	c.presenter.Show(c.current)
}

// Dismiss hides the surface and forgets the presented list.
func (c *Controller) Dismiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dismissLocked()
}

func (c *Controller) dismissLocked() {
	c.current = nil
	if c.presenter.Visible() {
		c.presenter.Hide()
	}
}

// Current returns a copy of the presented suggestions.
func (c *Controller) Current() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.current...)
}

// ApplySelected sanitizes suggestion index against the buffer before caret
// and returns the text to insert at caret. The surface is dismissed either
// way. It reports false when the index is out of range or nothing new
// would be inserted.
func (c *Controller) ApplySelected(index int, buffer string, caret int) (codelet.Insertion, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index < 0 || index >= len(c.current) {
		c.dismissLocked()
		return codelet.Insertion{}, false
	}
	if caret < 0 {
		caret = 0
	}
	if caret > len(buffer) {
		caret = len(buffer)
	}

	text := c.strategy.Sanitize(buffer[:caret], c.current[index])
	c.dismissLocked()
	if sanitize.Redundant(text) {
		return codelet.Insertion{}, false
	}
	return codelet.Insertion{Offset: caret, Text: text, CursorOffset: caret + len(text)}, true
}

// Recorder is a Presenter that only tracks state. Hosts without a UI of
// their own use it to report what would be shown.
type Recorder struct {
	mu      sync.Mutex
	visible bool
	items   []string
	shows   int
	updates int
}

func (r *Recorder) Show(suggestions []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visible = true
	r.items = suggestions
	r.shows++
}

func (r *Recorder) Update(suggestions []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = suggestions
	r.updates++
}

func (r *Recorder) Hide() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visible = false
	r.items = nil
}

func (r *Recorder) Visible() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visible
}

// Counts returns how many surfaces were created and updated.
func (r *Recorder) Counts() (shows, updates int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shows, r.updates
}
