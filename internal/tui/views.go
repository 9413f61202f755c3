package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"

	"github.com/felixgeelhaar/tirecode/internal/session"
)

// View renders the TUI (required by Bubble Tea)
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.styles.Title.Render("tirecode session"))
	b.WriteString("\n")

	if !m.hasSnap {
		b.WriteString(m.spinner.View() + " connecting...\n")
		return b.String()
	}

	b.WriteString(m.styles.Border.Render(m.renderStatus()))
	b.WriteString("\n\n")

	if m.lastError != "" {
		b.WriteString(m.styles.Error.Render("✗ "+m.lastError) + "\n\n")
	}

	b.WriteString(m.renderEvents())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) renderStatus() string {
	rows := [][2]string{
		{"State", m.renderState()},
		{"User", m.renderUser()},
		{"Next refresh", m.renderNextRefresh()},
	}

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, m.styles.Label.Render(r[0])+r[1])
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderState() string {
	s := m.snap
	switch {
	case s.IsLoading:
		return m.spinner.View() + m.styles.Pending.Render(" "+s.State.String())
	case s.IsAuthenticated && !s.Confirmed:
		return m.styles.Authenticated.Render("● authenticated") + m.styles.Muted.Render(" (not yet confirmed)")
	case s.IsAuthenticated:
		return m.styles.Authenticated.Render("● authenticated")
	case s.State == session.StateAuthenticated:
		return m.styles.Anonymous.Render("● authenticated (no token)")
	default:
		return m.styles.Anonymous.Render("○ " + s.State.String())
	}
}

func (m Model) renderUser() string {
	if m.snap.User == nil {
		return m.styles.Muted.Render("-")
	}
	return m.styles.Value.Render(fmt.Sprintf("%s (%s)", m.snap.User.Email, m.snap.User.ID))
}

func (m Model) renderNextRefresh() string {
	if m.refreshing {
		return m.spinner.View() + m.styles.Pending.Render(" refreshing")
	}
	if m.snap.NextRefresh.IsZero() {
		return m.styles.Muted.Render("not scheduled")
	}
	return m.styles.Value.Render(Countdown(m.snap.NextRefresh, m.now()))
}

func (m Model) renderEvents() string {
	if len(m.events) == 0 {
		return ""
	}
	var b strings.Builder
	for _, e := range m.events {
		b.WriteString(m.styles.Muted.Render(e.at.Format("15:04:05")+"  ") + e.text + "\n")
	}
	return b.String()
}

// StatusCard renders snap as the bordered status box used by 'auth status'.
func StatusCard(snap session.Snapshot, now time.Time) string {
	m := Model{
		snap:    snap,
		hasSnap: true,
		now:     func() time.Time { return now },
		spinner: spinner.New(),
		styles:  DefaultStyles(),
	}
	return m.styles.Border.Render(m.renderStatus())
}

// Countdown renders the time left until at, e.g. "in 53m59s (14:05:00)".
func Countdown(at, now time.Time) string {
	left := at.Sub(now).Truncate(time.Second)
	if left <= 0 {
		return "due (" + at.Format("15:04:05") + ")"
	}
	return fmt.Sprintf("in %s (%s)", left, at.Format("15:04:05"))
}
