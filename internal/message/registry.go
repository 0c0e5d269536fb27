// ABOUTME: Data-driven platform registry mapping a platform tag to its bundle
// ABOUTME: Bundles carry parse/format/detect functions plus capability limits

package message

import (
	"fmt"
	"log/slog"
	"sync"
)

// ParseFunc converts a raw transport payload into a canonical message. The
// sessionID argument may be empty; implementations derive one deterministically
// from the conversation coordinates when it is.
type ParseFunc func(raw []byte, sessionID string) (*CanonicalMessage, error)

// FormatFunc converts an already-shaped canonical response into the
// platform's native reply representation.
type FormatFunc func(resp *CanonicalResponse, caps Capabilities) (any, error)

// DetectFunc reports whether a raw payload structurally belongs to the bundle's
// platform. Headers are consulted as a fallback signal.
type DetectFunc func(raw []byte, headers map[string]string) bool

// Bundle groups everything the gateway needs to know about one platform.
// Adding a platform means registering a new bundle; no existing code path
// changes.
type Bundle struct {
	Platform     Platform
	Capabilities Capabilities
	Parse        ParseFunc
	Format       FormatFunc
	Detect       DetectFunc
}

// Registry holds the registered platform bundles. It is safe for concurrent
// use; registration normally happens once at startup.
type Registry struct {
	mu      sync.RWMutex
	bundles map[Platform]*Bundle
	order   []Platform
	logger  *slog.Logger
}

// NewRegistry creates a registry pre-populated with the built-in Telegram,
// HTTP and CLI bundles.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		bundles: make(map[Platform]*Bundle),
		logger:  logger.With("component", "message"),
	}
	r.mustRegister(telegramBundle())
	r.mustRegister(httpBundle())
	r.mustRegister(cliBundle())
	return r
}

// Register adds a bundle. A bundle for an already-registered platform is
// rejected rather than silently replaced.
func (r *Registry) Register(b *Bundle) error {
	if b == nil || b.Platform == "" {
		return fmt.Errorf("bundle must carry a platform tag")
	}
	if b.Parse == nil || b.Format == nil || b.Detect == nil {
		return fmt.Errorf("bundle for %q is incomplete", b.Platform)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bundles[b.Platform]; exists {
		return fmt.Errorf("platform %q already registered", b.Platform)
	}
	r.bundles[b.Platform] = b
	r.order = append(r.order, b.Platform)
	return nil
}

func (r *Registry) mustRegister(b *Bundle) {
	if err := r.Register(b); err != nil {
		panic(err)
	}
}

// Capabilities returns the capability table for a platform.
func (r *Registry) Capabilities(p Platform) (Capabilities, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bundles[p]
	if !ok {
		return Capabilities{}, false
	}
	return b.Capabilities, true
}

// Platforms returns the registered platform tags in registration order.
func (r *Registry) Platforms() []Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Platform, len(r.order))
	copy(out, r.order)
	return out
}

// Parse converts a raw payload for the given platform into a canonical
// message and validates it against the platform's capability table.
func (r *Registry) Parse(raw []byte, platform Platform, sessionID string) (*CanonicalMessage, error) {
	b, err := r.bundle(platform)
	if err != nil {
		return nil, err
	}

	msg, err := b.Parse(raw, sessionID)
	if err != nil {
		return nil, err
	}
	if err := r.Validate(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Format shapes a canonical response to the platform's limits (truncation,
// formatting degradation, action pagination) and converts it to the native
// reply representation. Shaping degrades with a warning; it never fails.
func (r *Registry) Format(resp *CanonicalResponse, platform Platform) (any, error) {
	b, err := r.bundle(platform)
	if err != nil {
		return nil, err
	}

	shaped := shapeResponse(resp, b.Capabilities, r.logger)
	return b.Format(shaped, b.Capabilities)
}

// DetectPlatform fingerprints a raw payload structurally, falling back to
// headers, and returns the first matching platform.
func (r *Registry) DetectPlatform(raw []byte, headers map[string]string) (Platform, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.order {
		if r.bundles[p].Detect(raw, headers) {
			return p, nil
		}
	}
	return "", ErrPlatformNotSupported
}

// Validate is a defensive re-check of required fields and length limits
// against the capability table.
func (r *Registry) Validate(msg *CanonicalMessage) error {
	if msg == nil {
		return ErrInvalidPayload
	}
	if msg.UserID == "" {
		return ErrMissingSender
	}
	if msg.Content.Text == "" {
		return ErrEmptyContent
	}

	caps, ok := r.Capabilities(msg.Platform)
	if !ok {
		return fmt.Errorf("%w: %q", ErrPlatformNotSupported, msg.Platform)
	}
	if caps.MaxMessageLength > 0 && len([]rune(msg.Content.Text)) > caps.MaxMessageLength {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len([]rune(msg.Content.Text)), caps.MaxMessageLength)
	}
	return nil
}

func (r *Registry) bundle(p Platform) (*Bundle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bundles[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPlatformNotSupported, p)
	}
	return b, nil
}
