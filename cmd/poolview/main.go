// Command poolview is a small terminal dashboard over a running
// proxy's /_admin/poolstats endpoint, showing per-endpoint success and
// failure counts as they change.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/streamrelay/proxy/internal/core/domain"
	"github.com/streamrelay/proxy/pkg/format"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	goodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

type statsSnapshot struct {
	WorkingCount  int                          `json:"WorkingCount"`
	TotalSuccess  int                          `json:"TotalSuccess"`
	TotalFailures int                          `json:"TotalFailures"`
	PerProxy      map[string]domain.ProxyEntry `json:"PerProxy"`
}

type tickMsg time.Time

type fetchResultMsg struct {
	snapshot statsSnapshot
	err      error
}

type model struct {
	adminURL string
	interval time.Duration
	snapshot statsSnapshot
	lastErr  error
	quitting bool
	fetching bool
	spin     spinner.Model
}

func newModel(adminURL string, interval time.Duration) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = dimStyle
	return model{adminURL: adminURL, interval: interval, fetching: true, spin: s}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(fetchCmd(m.adminURL), tickCmd(m.interval), m.spin.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
	case tickMsg:
		m.fetching = true
		return m, tea.Batch(fetchCmd(m.adminURL), tickCmd(m.interval))
	case fetchResultMsg:
		m.fetching = false
		if msg.err != nil {
			m.lastErr = msg.err
		} else {
			m.lastErr = nil
			m.snapshot = msg.snapshot
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	b := headerStyle.Render("streamrelay proxy pool")
	if m.fetching {
		b += "  " + m.spin.View()
	}
	b += "\n\n"

	if m.lastErr != nil {
		b += badStyle.Render(fmt.Sprintf("fetch error: %v", m.lastErr)) + "\n"
	}

	b += dimStyle.Render(fmt.Sprintf("working: %d  success: %d  failures: %d",
		m.snapshot.WorkingCount, m.snapshot.TotalSuccess, m.snapshot.TotalFailures)) + "\n\n"

	endpoints := make([]string, 0, len(m.snapshot.PerProxy))
	for ep := range m.snapshot.PerProxy {
		endpoints = append(endpoints, ep)
	}
	sort.Strings(endpoints)

	for _, ep := range endpoints {
		entry := m.snapshot.PerProxy[ep]
		total := entry.Successes + entry.Failures
		rate := 0.0
		if total > 0 {
			rate = float64(entry.Successes) / float64(total) * 100
		}
		line := fmt.Sprintf("%-40s  ok=%-5d fail=%-5d %s",
			ep, entry.Successes, entry.Failures, format.Percentage(rate))
		if entry.Failures > entry.Successes {
			b += badStyle.Render(line) + "\n"
		} else {
			b += goodStyle.Render(line) + "\n"
		}
	}

	b += "\n" + dimStyle.Render("q to quit")
	return b
}

func fetchCmd(adminURL string) tea.Cmd {
	return func() tea.Msg {
		client := http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(adminURL)
		if err != nil {
			return fetchResultMsg{err: err}
		}
		defer resp.Body.Close()

		var snapshot statsSnapshot
		if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
			return fetchResultMsg{err: err}
		}
		return fetchResultMsg{snapshot: snapshot}
	}
}

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "base URL of the running proxy")
	interval := flag.Duration("interval", 2*time.Second, "poll interval")
	flag.Parse()

	m := newModel(*addr+"/_admin/poolstats", *interval)

	if _, err := tea.NewProgram(m).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "poolview: %v\n", err)
		os.Exit(1)
	}
}
