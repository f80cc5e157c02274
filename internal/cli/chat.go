package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/arialive/memcore/internal/assemble"
	"github.com/arialive/memcore/internal/llm"
	"github.com/arialive/memcore/internal/memory"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	chatUser   string
	chatPrompt string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat session against the memory service",
	Long: `Start an interactive chat session. Each message runs the full
pipeline: context assembly, optional model reply, extraction and
conflict resolution. The session ends (persisting an episode and
running reflection) when you quit with Ctrl+C or Esc.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatUser, "user", "u", "", "user identifier (empty for an anonymous session)")
	chatCmd.Flags().StringVar(&chatPrompt, "system-prompt",
		"You are a friendly streaming companion. Stay in character and use what you know about the viewer.",
		"base system prompt")
}

// chatTheme holds the color scheme for the chat display.
type chatTheme struct {
	User      lipgloss.Color
	Assistant lipgloss.Color
	Error     lipgloss.Color
	Hint      lipgloss.Color
}

var defaultChatTheme = chatTheme{
	User:      lipgloss.Color("#5FAFD7"), // light blue
	Assistant: lipgloss.Color("#00D787"), // green
	Error:     lipgloss.Color("#FF005F"), // red
	Hint:      lipgloss.Color("#6C6C6C"), // dim gray
}

func (t chatTheme) userStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.User).Bold(true)
}

func (t chatTheme) assistantStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Assistant)
}

func (t chatTheme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t chatTheme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// replyMsg carries one completed pipeline round trip.
type replyMsg struct {
	reply string
	err   error
}

// chatModel is the bubbletea model for the chat session.
type chatModel struct {
	svc       *memory.Service
	model     *llm.Model
	sessionID string
	theme     chatTheme

	input   textinput.Model
	history []string
	recent  []assemble.Message
	waiting bool
	err     error
}

func newChatModel(svc *memory.Service, model *llm.Model, sessionID string) chatModel {
	ti := textinput.New()
	ti.Placeholder = "Say something..."
	ti.Focus()

	return chatModel{
		svc:       svc,
		model:     model,
		sessionID: sessionID,
		theme:     defaultChatTheme,
		input:     ti,
	}
}

func (m chatModel) Init() tea.Cmd {
	return nil
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			if m.waiting {
				return m, nil
			}
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.SetValue("")
			m.history = append(m.history, m.theme.userStyle().Render("you: ")+text)
			m.recent = append(m.recent, assemble.Message{Role: "user", Content: text})
			m.waiting = true
			return m, m.sendTurn(text)
		}

	case replyMsg:
		m.waiting = false
		if msg.err != nil {
			m.err = msg.err
			m.history = append(m.history, m.theme.errorStyle().Render("error: ")+msg.err.Error())
			return m, nil
		}
		m.history = append(m.history, m.theme.assistantStyle().Render("companion: ")+msg.reply)
		m.recent = append(m.recent, assemble.Message{Role: "assistant", Content: msg.reply})
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m chatModel) View() tea.View {
	var sb strings.Builder

	hint := "Ctrl+C or Esc ends the session and persists the episode."
	sb.WriteString(m.theme.hintStyle().Render(hint) + "\n\n")

	for _, line := range m.history {
		sb.WriteString(line + "\n")
	}

	if m.waiting {
		sb.WriteString(m.theme.hintStyle().Render("thinking...") + "\n")
	} else {
		sb.WriteString("\n" + m.input.View() + "\n")
	}

	return tea.NewView(sb.String())
}

// sendTurn runs one pipeline round trip as a command so Update never
// blocks on the database or the model.
func (m chatModel) sendTurn(text string) tea.Cmd {
	svc, model, sessionID := m.svc, m.model, m.sessionID
	recent := make([]assemble.Message, len(m.recent))
	copy(recent, m.recent)

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		split, err := svc.BuildContext(ctx, sessionID, chatPrompt, text, recent)
		if err != nil {
			return replyMsg{err: err}
		}

		reply := fmt.Sprintf("(no model configured; assembled %d context chars)", len(split.SystemContent))
		if model != nil {
			out, err := model.GenerateWithSystem(ctx, split.SystemContent, text)
			if err != nil {
				return replyMsg{err: fmt.Errorf("generate reply: %w", err)}
			}
			reply = out
		}

		if err := svc.ProcessTurn(ctx, sessionID, text, reply); err != nil {
			return replyMsg{err: fmt.Errorf("process turn: %w", err)}
		}
		return replyMsg{reply: reply}
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	svc, model, err := buildService()
	if err != nil {
		return err
	}

	ctx := context.Background()
	sessionID, err := svc.StartSession(ctx, chatUser)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	p := tea.NewProgram(newChatModel(svc, model, sessionID))
	_, runErr := p.Run()

	endCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := svc.EndSession(endCtx, sessionID); err != nil {
		fmt.Printf("Warning: ending session failed: %v\n", err)
	} else {
		fmt.Println("Session ended; episode and reflection persisted.")
	}

	if runErr != nil {
		return fmt.Errorf("chat UI error: %w", runErr)
	}
	return nil
}
