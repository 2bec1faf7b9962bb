package viewer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Action names one discrete operator command. The UI layer owns key
// bindings; these are the operations they map onto, one-to-one.
type Action string

const (
	ActionPanLeft     Action = "pan_left"
	ActionPanRight    Action = "pan_right"
	ActionZoomIn      Action = "zoom_in"
	ActionZoomOut     Action = "zoom_out"
	ActionHome        Action = "home"
	ActionEnd         Action = "end"
	ActionReset       Action = "reset"
	ActionTogglePause Action = "toggle_pause"
)

// Session ties one engine to a refresh tick and a view-model feed. The
// metric selection is session-wide state any connected client may
// change; the next refresh picks it up.
type Session struct {
	engine *Engine
	feed   *Feed
	clock  func() time.Time
	logger *slog.Logger

	mu        sync.Mutex
	selection []Metric
}

// NewSession wraps an engine. clock defaults to time.Now.
func NewSession(engine *Engine, clock func() time.Time, logger *slog.Logger) *Session {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		engine:    engine,
		feed:      NewFeed(),
		clock:     clock,
		logger:    logger.With("component", "viewer_session"),
		selection: DefaultSelection,
	}
}

// Engine returns the underlying engine.
func (s *Session) Engine() *Engine { return s.engine }

// Feed returns the view-model feed renderers subscribe to.
func (s *Session) Feed() *Feed { return s.feed }

// Selection returns the current metric selection.
func (s *Session) Selection() []Metric {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Metric, len(s.selection))
	copy(out, s.selection)
	return out
}

// SetSelection replaces the metric selection. Unknown metric names are
// rejected; an empty selection restores the default.
func (s *Session) SetSelection(metrics []Metric) error {
	for _, metric := range metrics {
		if !metric.Valid() {
			return fmt.Errorf("unknown metric %q", metric)
		}
	}
	s.mu.Lock()
	if len(metrics) == 0 {
		s.selection = DefaultSelection
	} else {
		s.selection = append([]Metric(nil), metrics...)
	}
	s.mu.Unlock()

	// Re-render immediately so the change is visible before the next tick.
	s.RefreshNow()
	return nil
}

// RefreshNow computes and publishes a view-model outside the regular
// tick, e.g. right after a navigation command.
func (s *Session) RefreshNow() *ViewModel {
	vm := s.engine.Refresh(s.clock(), s.Selection())
	s.feed.Publish(vm)
	return vm
}

// Run publishes one view-model per refresh tick until the context is
// canceled.
func (s *Session) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("refresh interval must be > 0")
	}
	s.logger.Info("refresh loop started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer s.feed.Close()

	s.RefreshNow()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("refresh loop stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			s.RefreshNow()
		}
	}
}

// Navigate applies one operator command and re-renders. Unknown
// actions fail with ErrInvalidNavigation; window state is untouched.
func (s *Session) Navigate(action Action) error {
	var err error
	switch action {
	case ActionPanLeft:
		err = s.engine.PanBack()
	case ActionPanRight:
		err = s.engine.PanForward()
	case ActionZoomIn:
		err = s.engine.ZoomIn()
	case ActionZoomOut:
		err = s.engine.ZoomOut()
	case ActionHome:
		s.engine.JumpStart()
	case ActionEnd:
		s.engine.JumpEnd()
	case ActionReset:
		s.engine.Reset(s.clock())
	case ActionTogglePause:
		err = s.engine.TogglePause(s.clock())
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidNavigation, action)
	}
	if err != nil {
		return err
	}
	s.RefreshNow()
	return nil
}
