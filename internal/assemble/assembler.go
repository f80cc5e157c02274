// Package assemble merges memory sources into a token-budgeted prompt
// context. Section order is fixed; budgets for absent optional sections
// are redistributed to the sections that benefit most.
package assemble

import (
	"strings"

	"github.com/arialive/memcore/internal/models"
	"github.com/arialive/memcore/internal/tokens"
)

// Section headers inside the assembled system content.
const (
	HeaderStream   = "[Current Stream Status]"
	HeaderProfile  = "[About the person you're talking to]"
	HeaderMemories = "[Relevant memories]"
	HeaderEpisodic = "[Previous sessions]"
)

// Message is one chat message in the assembled context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Allocation is the fraction of the usable budget granted to each named
// bucket. Fractions should sum to 1.
type Allocation struct {
	SystemPrompt  float64
	StreamContext float64
	EntityProfile float64
	Procedural    float64
	Memories      float64
	Recent        float64
	Episodic      float64
}

// DefaultAllocation weights recent messages and retrieved memories
// highest.
func DefaultAllocation() Allocation {
	return Allocation{
		SystemPrompt:  0.15,
		StreamContext: 0.10,
		EntityProfile: 0.10,
		Procedural:    0.10,
		Memories:      0.20,
		Recent:        0.25,
		Episodic:      0.10,
	}
}

// Config controls the assembler's budget.
type Config struct {
	// TokenBudget is the total prompt budget including the reserve.
	TokenBudget int
	// ResponseReserve is the budget fraction kept free for the model's
	// response. Default 0.1.
	ResponseReserve float64
	// Allocation splits the remainder across buckets.
	Allocation Allocation
}

// Input carries the sections to assemble. Optional sections that are
// empty or whitespace-only are treated as absent.
type Input struct {
	SystemPrompt      string
	RecentMessages    []Message
	StreamContext     string
	EntityProfile     string
	ProceduralRules   string // pre-formatted, no added header
	RetrievedMemories []models.RetrievalResult
	EpisodicSummary   string
}

// Split is the assembled result: the system content plus the retained
// recent messages.
type Split struct {
	SystemContent string
	Messages      []Message
}

// Assembler builds token-budgeted prompt contexts.
type Assembler struct {
	cfg     Config
	counter tokens.Counter
}

// New creates an assembler with the given token counter. A nil counter
// selects the approximate default.
func New(cfg Config, counter tokens.Counter) *Assembler {
	if counter == nil {
		counter = tokens.Approximate
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = 4096
	}
	if cfg.ResponseReserve <= 0 || cfg.ResponseReserve >= 1 {
		cfg.ResponseReserve = 0.1
	}
	zero := Allocation{}
	if cfg.Allocation == zero {
		cfg.Allocation = DefaultAllocation()
	}
	return &Assembler{cfg: cfg, counter: counter}
}

// budgets are the resolved per-bucket token budgets after
// redistribution.
type budgets struct {
	system     int
	stream     int
	profile    int
	procedural int
	memories   int
	recent     int
	episodic   int
}

// resolve computes bucket budgets, redistributing the allocation of
// absent optional sections: stream/procedural/episodic go to recent
// messages; entity profile goes to retrieved memories when present,
// otherwise to recent messages.
func (a *Assembler) resolve(in Input) budgets {
	usable := float64(a.cfg.TokenBudget) * (1 - a.cfg.ResponseReserve)
	alloc := a.cfg.Allocation

	hasStream := present(in.StreamContext)
	hasProfile := present(in.EntityProfile)
	hasProcedural := present(in.ProceduralRules)
	hasMemories := len(in.RetrievedMemories) > 0
	hasEpisodic := present(in.EpisodicSummary)

	recentShare := alloc.Recent
	memoriesShare := alloc.Memories

	if !hasStream {
		recentShare += alloc.StreamContext
	}
	if !hasProcedural {
		recentShare += alloc.Procedural
	}
	if !hasEpisodic {
		recentShare += alloc.Episodic
	}
	if !hasProfile {
		if hasMemories {
			memoriesShare += alloc.EntityProfile
		} else {
			recentShare += alloc.EntityProfile
		}
	}
	if !hasMemories {
		recentShare += memoriesShare
		memoriesShare = 0
	}

	b := budgets{
		system: int(usable * alloc.SystemPrompt),
		recent: int(usable * recentShare),
	}
	if hasStream {
		b.stream = int(usable * alloc.StreamContext)
	}
	if hasProfile {
		b.profile = int(usable * alloc.EntityProfile)
	}
	if hasProcedural {
		b.procedural = int(usable * alloc.Procedural)
	}
	if hasMemories {
		b.memories = int(usable * memoriesShare)
	}
	if hasEpisodic {
		b.episodic = int(usable * alloc.Episodic)
	}
	return b
}

// AssembleSplit builds the system content and the retained recent
// messages. Section order inside the system content is fixed: base
// prompt, stream context, entity profile, procedural rules, retrieved
// memories, episodic summary.
func (a *Assembler) AssembleSplit(in Input) Split {
	b := a.resolve(in)

	sections := make([]string, 0, 6)
	sections = append(sections, a.truncate(strings.TrimSpace(in.SystemPrompt), b.system))

	if b.stream > 0 {
		sections = append(sections, withHeader(HeaderStream, a.truncate(strings.TrimSpace(in.StreamContext), b.stream)))
	}
	if b.profile > 0 {
		sections = append(sections, withHeader(HeaderProfile, a.truncate(strings.TrimSpace(in.EntityProfile), b.profile)))
	}
	if b.procedural > 0 {
		sections = append(sections, a.truncate(strings.TrimSpace(in.ProceduralRules), b.procedural))
	}
	if b.memories > 0 {
		if rendered := a.renderMemories(in.RetrievedMemories, b.memories); rendered != "" {
			sections = append(sections, withHeader(HeaderMemories, rendered))
		}
	}
	if b.episodic > 0 {
		sections = append(sections, withHeader(HeaderEpisodic, a.truncate(strings.TrimSpace(in.EpisodicSummary), b.episodic)))
	}

	nonEmpty := sections[:0]
	for _, s := range sections {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}

	return Split{
		SystemContent: strings.Join(nonEmpty, "\n\n"),
		Messages:      a.fitRecent(in.RecentMessages, b.recent),
	}
}

// Assemble is a convenience wrapper returning a flat message list with
// the assembled system content first.
func (a *Assembler) Assemble(in Input) []Message {
	split := a.AssembleSplit(in)
	out := make([]Message, 0, len(split.Messages)+1)
	out = append(out, Message{Role: "system", Content: split.SystemContent})
	return append(out, split.Messages...)
}

// renderMemories takes retrieved memories greedily, highest score
// first, while the rendered list fits the budget.
func (a *Assembler) renderMemories(memories []models.RetrievalResult, budget int) string {
	var sb strings.Builder
	used := 0
	for _, m := range memories {
		line := "- " + m.Content
		cost := a.counter(line)
		if used+cost > budget {
			break
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(line)
		used += cost
	}
	return sb.String()
}

// fitRecent keeps the newest messages that fit the budget, preserving
// chronological order in the output.
func (a *Assembler) fitRecent(messages []Message, budget int) []Message {
	used := 0
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := a.counter(messages[i].Content)
		if used+cost > budget && start < len(messages) {
			break
		}
		if used+cost > budget {
			// Always keep at least the newest message, truncated. The
			// truncated element is a copy; the caller's slice is reused
			// across turns and must keep the full text.
			m := messages[i]
			m.Content = a.truncate(m.Content, budget)
			return append([]Message{m}, messages[i+1:]...)
		}
		used += cost
		start = i
	}
	return messages[start:]
}

// truncate cuts text to fit the budget, preferring line boundaries and
// falling back to a rune prefix.
func (a *Assembler) truncate(text string, budget int) string {
	if text == "" || budget <= 0 {
		return ""
	}
	if a.counter(text) <= budget {
		return text
	}

	lines := strings.Split(text, "\n")
	if len(lines) > 1 {
		var sb strings.Builder
		used := 0
		for _, line := range lines {
			cost := a.counter(line)
			if used+cost > budget {
				break
			}
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(line)
			used += cost
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}

	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if a.counter(string(runes[:mid])) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo])
}

func present(s string) bool {
	return strings.TrimSpace(s) != ""
}

func withHeader(header, body string) string {
	if body == "" {
		return ""
	}
	// Formatters may already emit their own header.
	if strings.HasPrefix(body, header) {
		return body
	}
	return header + "\n" + body
}
