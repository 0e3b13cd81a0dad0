package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tOgg1/parley/internal/chat"
)

type tuiPalette struct {
	Panel     string
	Text      string
	TextMuted string
	Border    string
	Focus     string
	Success   string
	Warning   string
	Error     string
}

var palette = tuiPalette{
	Panel:     "#121821",
	Text:      "#E6EDF3",
	TextMuted: "#8B9AAE",
	Border:    "#223043",
	Focus:     "#7AA2F7",
	Success:   "#3FB950",
	Warning:   "#D29922",
	Error:     "#F85149",
}

const (
	minListWidth = 28
	listShare    = 3 // room list takes width/listShare of the screen
)

func (m model) View() string {
	if m.quitting {
		return ""
	}

	width := m.width
	if width <= 0 {
		width = 100
	}
	height := m.height
	if height <= 0 {
		height = 30
	}

	header := m.renderHeader(width)
	overhead := 2
	status, hasStatus := m.engine.Status()
	if hasStatus {
		overhead++
	}
	paneHeight := maxInt(6, height-overhead)

	listWidth := maxInt(minListWidth, width/listShare)
	detailWidth := maxInt(20, width-listWidth)

	left := m.renderRoomList(listWidth, paneHeight)
	right := m.renderDetail(detailWidth, paneHeight)
	body := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	parts := []string{header, body}
	if hasStatus {
		parts = append(parts, m.renderStatusLine(width, status))
	}
	return strings.Join(parts, "\n")
}

func (m model) renderHeader(width int) string {
	detail := "timeline"
	if m.detail == detailReceipts {
		detail = "receipts"
	}
	header := fmt.Sprintf(
		"Parley  sync:%s  rooms:%d  view:%s  keys:j/k move r receipts t timeline m read s/S sync q quit",
		m.engine.SyncState(), len(m.engine.Entries()), detail,
	)
	if m.markBusy {
		header += "  receipt:sending"
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(palette.Text)).
		Background(lipgloss.Color(palette.Panel)).
		Width(width).
		Padding(0, 1).
		Render(header)
}

func (m model) renderRoomList(width, height int) string {
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(palette.Border)).
		Width(width - 2).
		Height(height)

	entries := m.engine.Entries()
	selectedIdx, hasSelection := m.engine.SelectionIndex()

	rows := make([]string, 0, len(entries)+1)
	rows = append(rows, lipgloss.NewStyle().
		Foreground(lipgloss.Color(palette.TextMuted)).
		Render(fmt.Sprintf("Rooms (%d)", len(entries))))

	visible := maxInt(1, height-3)
	start := 0
	if hasSelection && selectedIdx >= visible {
		start = selectedIdx - visible + 1
	}
	for i := start; i < len(entries) && i < start+visible; i++ {
		line := truncate(renderEntry(entries[i]), width-6)
		if hasSelection && i == selectedIdx {
			line = lipgloss.NewStyle().
				Foreground(lipgloss.Color(palette.Focus)).
				Bold(true).
				Render("> " + line)
		} else {
			line = "  " + line
		}
		rows = append(rows, line)
	}

	return style.Render(strings.Join(rows, "\n"))
}

func renderEntry(entry chat.RoomEntry) string {
	switch entry.Kind {
	case chat.EntryFilled:
		return string(entry.RoomID)
	case chat.EntryInvalidated:
		if entry.RoomID != "" {
			return string(entry.RoomID) + " (stale)"
		}
		return "(stale)"
	default:
		return "(loading)"
	}
}

func (m model) renderDetail(width, height int) string {
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(palette.Border)).
		Width(width - 2).
		Height(height)

	id, ok := m.engine.SelectedRoomID()
	if !ok {
		return style.Render(lipgloss.NewStyle().
			Foreground(lipgloss.Color(palette.TextMuted)).
			Render("No room focused. j/k to pick one."))
	}

	var content []string
	if m.detail == detailReceipts {
		content = m.renderReceipts(id)
	} else {
		content = m.renderTimeline(id, width-4, maxInt(1, height-3))
	}
	return style.Render(strings.Join(content, "\n"))
}

func (m model) renderTimeline(id chat.RoomID, width, visible int) []string {
	items := m.engine.SelectedTimeline()

	lines := make([]string, 0, len(items)+1)
	lines = append(lines, lipgloss.NewStyle().
		Foreground(lipgloss.Color(palette.TextMuted)).
		Render(fmt.Sprintf("%s (%d items)", id, len(items))))

	// Latest items win the viewport.
	start := 0
	if len(items) > visible {
		start = len(items) - visible
	}
	for _, item := range items[start:] {
		lines = append(lines, renderItem(item, width))
	}
	return lines
}

func renderItem(item chat.TimelineItem, width int) string {
	if item.Virtual {
		switch item.VirtualKind {
		case chat.VirtualDayDivider:
			return lipgloss.NewStyle().
				Foreground(lipgloss.Color(palette.TextMuted)).
				Render(truncate("--- "+item.Timestamp.Format("Mon, Jan 2 2006")+" ---", width))
		default:
			return lipgloss.NewStyle().
				Foreground(lipgloss.Color(palette.Success)).
				Render(truncate("--- read up to here ---", width))
		}
	}

	switch item.Content {
	case chat.ContentMessage:
		return truncate(fmt.Sprintf("%s: %s", item.Sender, item.Body), width)
	case chat.ContentRedacted:
		return lipgloss.NewStyle().
			Foreground(lipgloss.Color(palette.TextMuted)).
			Render(truncate(item.Sender+": [redacted]", width))
	case chat.ContentUndecryptable:
		return lipgloss.NewStyle().
			Foreground(lipgloss.Color(palette.Warning)).
			Render(truncate(item.Sender+": [unable to decrypt]", width))
	default:
		return lipgloss.NewStyle().
			Foreground(lipgloss.Color(palette.TextMuted)).
			Render(truncate(item.Sender+": [unsupported event]", width))
	}
}

func (m model) renderReceipts(id chat.RoomID) []string {
	lines := []string{lipgloss.NewStyle().
		Foreground(lipgloss.Color(palette.TextMuted)).
		Render(string(id) + " read receipts")}

	receipts, ok := m.engine.SelectedReceipts()
	if !ok {
		lines = append(lines, "No receipt data yet.")
		return lines
	}
	lines = append(lines,
		fmt.Sprintf("Unread:        %d", receipts.Unread),
		fmt.Sprintf("Notifications: %d", receipts.Notifications),
		fmt.Sprintf("Mentions:      %d", receipts.Mentions),
	)
	return lines
}

func (m model) renderStatusLine(width int, status string) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(palette.Text)).
		Background(lipgloss.Color(palette.Panel)).
		Width(width).
		Padding(0, 1).
		Render(truncate(status, width-2))
}

// truncate shortens s to at most width runes, ending in an ellipsis.
// Counting runes rather than bytes keeps multi-byte room names and
// message bodies from being cut mid-character.
func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width == 1 {
		return string(runes[:1])
	}
	return string(runes[:width-1]) + "…"
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
