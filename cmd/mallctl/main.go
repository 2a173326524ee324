package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
)

type action struct {
	Name        string
	Description string
}

type model struct {
	actions  []action
	selected int
	status   string
	detail   string
	busy     bool
}

func initialModel() model {
	return model{
		actions: []action{
			{"admin-stats", "Platform-wide order stats"},
			{"timeout-sweep", "Cancel overdue pending orders now"},
			{"confirm-sweep", "Auto-confirm overdue shipped orders now"},
			{"create-order", "Create a test order"},
		},
		status: "Ready",
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up":
			if m.selected > 0 {
				m.selected--
			}
		case "down":
			if m.selected < len(m.actions)-1 {
				m.selected++
			}
		case "enter":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Running..."
			return m, runActionCmd(m.actions[m.selected].Name)
		}
	case actionResult:
		m.busy = false
		m.status = msg.status
		m.detail = msg.detail
	}
	return m, nil
}

func (m model) View() string {
	b := &strings.Builder{}
	fmt.Fprintln(b, "mallctl — order-service operator console")
	fmt.Fprintln(b, "")
	fmt.Fprintln(b, "Actions:")
	for i, a := range m.actions {
		marker := " "
		if i == m.selected {
			marker = ">"
		}
		fmt.Fprintf(b, " %s %s - %s\n", marker, a.Name, a.Description)
	}
	fmt.Fprintln(b, "")
	fmt.Fprintf(b, "Status: %s\n", m.status)
	if m.detail != "" {
		fmt.Fprintf(b, "Result: %s\n", m.detail)
	}
	fmt.Fprintln(b, "\nControls: up/down select, enter to run, q to quit")
	return b.String()
}

type actionResult struct {
	status string
	detail string
}

func runActionCmd(name string) tea.Cmd {
	return func() tea.Msg {
		baseURL := strings.TrimRight(getenv("ORDER_BASE_URL", "http://localhost:8080"), "/")
		switch name {
		case "admin-stats":
			body, err := call(http.MethodGet, baseURL+"/orders/admin/stats", nil, "")
			if err != nil {
				return actionResult{status: fmt.Sprintf("Stats failed: %v", err)}
			}
			return actionResult{status: "Stats OK", detail: body}
		case "timeout-sweep":
			body, err := call(http.MethodPost, baseURL+"/admin/tasks/timeout-sweep", nil, "")
			if err != nil {
				return actionResult{status: fmt.Sprintf("Sweep failed: %v", err)}
			}
			return actionResult{status: "Timeout sweep done", detail: body}
		case "confirm-sweep":
			body, err := call(http.MethodPost, baseURL+"/admin/tasks/auto-confirm-sweep", nil, "")
			if err != nil {
				return actionResult{status: fmt.Sprintf("Sweep failed: %v", err)}
			}
			return actionResult{status: "Auto-confirm sweep done", detail: body}
		case "create-order":
			req := map[string]any{
				"userId":          1,
				"items":           []map[string]any{{"productId": 1, "quantity": 1}},
				"receiverName":    "Test User",
				"receiverPhone":   "13800000000",
				"receiverAddress": "1 Test Street",
			}
			body, err := call(http.MethodPost, baseURL+"/orders", req, uuid.NewString())
			if err != nil {
				return actionResult{status: fmt.Sprintf("Create failed: %v", err)}
			}
			return actionResult{status: "Create OK", detail: body}
		default:
			return actionResult{status: "Unknown action: " + name}
		}
	}
}

func call(method, url string, payload any, idemKey string) (string, error) {
	var body io.Reader
	if payload != nil {
		data, _ := json.Marshal(payload)
		body = bytes.NewReader(data)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, string(data))
	}
	return string(data), nil
}

func main() {
	runCmd := flag.String("run", "", "run action headless: admin-stats|timeout-sweep|confirm-sweep|create-order")
	flag.Parse()

	if *runCmd != "" {
		res := runActionCmd(*runCmd)().(actionResult)
		fmt.Println(res.status)
		if res.detail != "" {
			fmt.Println(res.detail)
		}
		return
	}

	p := tea.NewProgram(initialModel())
	if _, err := p.Run(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
