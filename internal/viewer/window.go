package viewer

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidNavigation marks malformed pan/zoom parameters. The window
// state is unchanged when it is returned.
var ErrInvalidNavigation = errors.New("invalid navigation")

// Mode describes how the window tracks time.
type Mode string

const (
	// ModeLive pins the window's end to "now" on every refresh.
	ModeLive Mode = "live"
	// ModePaused freezes the window while the store keeps growing.
	ModePaused Mode = "paused"
	// ModeStatic views a finite recording; the window never leaves it.
	ModeStatic Mode = "static"
)

// Direction of a pan operation.
type Direction int

const (
	PanBack Direction = iota
	PanForward
)

// Window is a half-open [Start, End) view over wall-clock time.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Span returns the window width.
func (w Window) Span() time.Duration {
	return w.End.Sub(w.Start)
}

// Limits bound the navigable span.
type Limits struct {
	MinSpan     time.Duration
	MaxSpan     time.Duration
	DefaultSpan time.Duration
}

func (l Limits) clampSpan(span time.Duration) time.Duration {
	if l.MinSpan > 0 && span < l.MinSpan {
		return l.MinSpan
	}
	if l.MaxSpan > 0 && span > l.MaxSpan {
		return l.MaxSpan
	}
	return span
}

// Model is the navigation state machine over a window. It holds no
// reference to sample data; callers supply "now" and data edges. The
// live half (Live/Paused) and the static half of the state space are
// disjoint: the constructor decides which is reachable.
type Model struct {
	win    Window
	mode   Mode
	limits Limits

	// Recording bounds, set only in static mode.
	recStart time.Time
	recEnd   time.Time
}

// NewLiveModel starts in Live mode with the default span ending at now.
func NewLiveModel(now time.Time, limits Limits) *Model {
	span := limits.clampSpan(limits.DefaultSpan)
	return &Model{
		win:    Window{Start: now.Add(-span), End: now},
		mode:   ModeLive,
		limits: limits,
	}
}

// NewStaticModel starts in Static mode over a finished recording,
// anchored at the recording's end.
func NewStaticModel(recStart, recEnd time.Time, limits Limits) (*Model, error) {
	if !recEnd.After(recStart) {
		return nil, fmt.Errorf("recording end %s not after start %s", recEnd, recStart)
	}
	m := &Model{
		mode:     ModeStatic,
		limits:   limits,
		recStart: recStart,
		recEnd:   recEnd,
	}
	m.resetStatic()
	return m, nil
}

// Window returns the current bounds.
func (m *Model) Window() Window { return m.win }

// Mode returns the current tracking mode.
func (m *Model) Mode() Mode { return m.mode }

// Span returns the current window width.
func (m *Model) Span() time.Duration { return m.win.Span() }

// FollowLive re-pins the end of the window to now. Only Live mode
// moves; Paused and Static windows stay put.
func (m *Model) FollowLive(now time.Time) {
	if m.mode != ModeLive {
		return
	}
	span := m.win.Span()
	m.win = Window{Start: now.Add(-span), End: now}
}

// Pan shifts the window by fraction of its span. Panning back in Live
// mode implicitly pauses: a window pinned to "now" cannot move.
// Panning forward never auto-resumes; resume is explicit.
func (m *Model) Pan(dir Direction, fraction float64) error {
	if fraction <= 0 || fraction != fraction {
		return fmt.Errorf("%w: pan fraction %v must be > 0", ErrInvalidNavigation, fraction)
	}

	span := m.win.Span()
	shift := time.Duration(float64(span) * fraction)

	switch dir {
	case PanBack:
		if m.mode == ModeLive {
			m.mode = ModePaused
		}
		m.win = Window{Start: m.win.Start.Add(-shift), End: m.win.End.Add(-shift)}
	case PanForward:
		if m.mode == ModeLive {
			// Already pinned to the live edge.
			return nil
		}
		m.win = Window{Start: m.win.Start.Add(shift), End: m.win.End.Add(shift)}
	default:
		return fmt.Errorf("%w: unknown pan direction %d", ErrInvalidNavigation, dir)
	}

	if m.mode == ModeStatic {
		m.clampToRecording(span)
	}
	return nil
}

// Zoom multiplies the span by factor (>1 widens, <1 narrows) holding
// the window center fixed, clamped to the span limits.
func (m *Model) Zoom(factor float64) error {
	if factor <= 0 || factor != factor {
		return fmt.Errorf("%w: zoom factor %v must be > 0", ErrInvalidNavigation, factor)
	}

	span := m.win.Span()
	newSpan := m.limits.clampSpan(time.Duration(float64(span) * factor))
	center := m.win.Start.Add(span / 2)
	m.win = Window{
		Start: center.Add(-newSpan / 2),
		End:   center.Add(newSpan / 2),
	}

	if m.mode == ModeStatic {
		m.clampToRecording(newSpan)
	}
	return nil
}

// JumpStart snaps the window to the beginning of available data,
// preserving the span. dataStart is ignored in static mode, where the
// recording's own start applies. Jumping while Live pauses: the window
// leaves the live edge.
func (m *Model) JumpStart(dataStart time.Time) {
	span := m.win.Span()
	start := dataStart
	if m.mode == ModeStatic {
		start = m.recStart
	} else if m.mode == ModeLive {
		m.mode = ModePaused
	}
	m.win = Window{Start: start, End: start.Add(span)}
	if m.mode == ModeStatic {
		m.clampToRecording(span)
	}
}

// JumpEnd snaps the window to the end of available data, preserving the
// span. Jumping while Live pauses, as in JumpStart: the data edge can
// trail now, and a live window would snap straight back to it. Does not
// resume Live from Paused; resume is explicit.
func (m *Model) JumpEnd(dataEnd time.Time) {
	span := m.win.Span()
	end := dataEnd
	if m.mode == ModeStatic {
		end = m.recEnd
	} else if m.mode == ModeLive {
		m.mode = ModePaused
	}
	m.win = Window{Start: end.Add(-span), End: end}
	if m.mode == ModeStatic {
		m.clampToRecording(span)
	}
}

// Reset returns to the default span anchored at the live edge (or the
// recording's end) and, in a live context, resumes Live mode.
func (m *Model) Reset(now time.Time) {
	if m.mode == ModeStatic {
		m.resetStatic()
		return
	}
	span := m.limits.clampSpan(m.limits.DefaultSpan)
	m.mode = ModeLive
	m.win = Window{Start: now.Add(-span), End: now}
}

// TogglePause swaps Live and Paused. Pausing freezes the bounds where
// they are; resuming re-pins the end to now with the span preserved.
// Illegal in static mode.
func (m *Model) TogglePause(now time.Time) error {
	switch m.mode {
	case ModeLive:
		m.mode = ModePaused
		return nil
	case ModePaused:
		span := m.win.Span()
		m.mode = ModeLive
		m.win = Window{Start: now.Add(-span), End: now}
		return nil
	default:
		return fmt.Errorf("%w: toggle pause in static mode", ErrInvalidNavigation)
	}
}

func (m *Model) resetStatic() {
	span := m.limits.clampSpan(m.limits.DefaultSpan)
	start := m.recEnd.Add(-span)
	if start.Before(m.recStart) {
		start = m.recStart
	}
	m.win = Window{Start: start, End: m.recEnd}
}

// clampToRecording keeps the window inside the recording, preserving
// the requested span where the recording allows it.
func (m *Model) clampToRecording(span time.Duration) {
	if rec := m.recEnd.Sub(m.recStart); span > rec {
		span = rec
	}
	if m.win.Start.Before(m.recStart) {
		m.win = Window{Start: m.recStart, End: m.recStart.Add(span)}
	}
	if m.win.End.After(m.recEnd) {
		m.win = Window{Start: m.recEnd.Add(-span), End: m.recEnd}
	}
}
