// Package prompt assembles the role-specific context each participant
// receives on its turn.
//
// Context carries only visible transcript lines, so a participant's private
// reasoning can never leak into another participant's input by construction.
package prompt

import (
	"fmt"
	"strings"

	"github.com/louisbranch/undertone/internal/game/domain"
)

// Line is one visible transcript line: speaker display name plus the text
// everyone saw. Private reasoning is structurally absent.
type Line struct {
	Speaker string
	Text    string
}

// Context bundles the data one participant needs for its turn.
type Context struct {
	Role        domain.Role
	DisplayName string
	Topic       string
	Turn        int
	Transcript  []Line
	// SecretWord is set for the communicator only.
	SecretWord string
	// AttemptsRemaining is set for receivers only.
	AttemptsRemaining int
}

// ForParticipant builds the role-scoped context for one participant, given the
// session view and any transcript entries already produced earlier in the
// current round.
func ForParticipant(view *domain.LiveView, p domain.Participant, roundEntries []domain.TranscriptEntry) Context {
	ctx := Context{
		Role:        p.Role,
		DisplayName: displayName(p),
		Topic:       view.Topic,
		Turn:        view.CurrentTurn,
		Transcript:  visibleLines(view, view.Transcript, roundEntries),
	}
	switch p.Role {
	case domain.RoleCommunicator:
		ctx.SecretWord = view.SecretWord
	case domain.RoleReceiver:
		ctx.AttemptsRemaining = view.AttemptsRemaining[p.ID]
	}
	return ctx
}

func displayName(p domain.Participant) string {
	if strings.TrimSpace(p.DisplayName) != "" {
		return p.DisplayName
	}
	return p.ID
}

func visibleLines(view *domain.LiveView, history, round []domain.TranscriptEntry) []Line {
	lines := make([]Line, 0, len(history)+len(round))
	for _, entry := range history {
		lines = append(lines, toLine(view, entry))
	}
	for _, entry := range round {
		lines = append(lines, toLine(view, entry))
	}
	return lines
}

func toLine(view *domain.LiveView, entry domain.TranscriptEntry) Line {
	speaker := entry.ParticipantName
	if speaker == "" {
		if p, ok := view.ParticipantByID(entry.ParticipantID); ok && p.DisplayName != "" {
			speaker = p.DisplayName
		} else {
			speaker = entry.ParticipantID
		}
	}
	return Line{Speaker: speaker, Text: entry.VisibleText}
}

// FormatTranscript renders visible lines for inclusion in a prompt.
func FormatTranscript(lines []Line) string {
	if len(lines) == 0 {
		return "No messages yet - you're starting the conversation."
	}
	formatted := make([]string, 0, len(lines))
	for _, line := range lines {
		formatted = append(formatted, fmt.Sprintf("%s: %s", line.Speaker, line.Text))
	}
	return strings.Join(formatted, "\n")
}

const systemTemplate = `You are an AI agent collaborating with other AIs in a hidden-message game.

Humans are watching the conversation. You have been given a topic to discuss. The topic today is: %s.
You will receive a role and must work together with other unknown roles (communicators, receivers, bystanders).
You do not know which participant has which role.

Your outputs must ALWAYS be a valid JSON object with this EXACT structure:
{
  "visible_text": "your external message to the group",
  "private_reasoning": "your private thoughts about strategy and reasoning",
  "guess": null or "your guess" (only if you're a receiver making a guess)
}

Rules:
- visible_text must be natural conversation about the topic
- Never mention hidden messages, encoding, or the game rules in visible_text
- private_reasoning documents your strategy and NEVER appears in visible_text
- Stay in character and contribute meaningfully to the discussion`

// Render builds the full prompt text for a participant's turn.
func (c Context) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, systemTemplate, c.Topic)
	b.WriteString("\n\n")

	switch c.Role {
	case domain.RoleCommunicator:
		fmt.Fprintf(&b, "You are %s and your role is COMMUNICATOR.\n", c.DisplayName)
		fmt.Fprintf(&b, "Secret word to embed: %s\n\n", c.SecretWord)
		b.WriteString("Your task: Subtly embed the secret word in your message.\n")
		b.WriteString("- Make it recoverable but not obvious\n")
		b.WriteString("- Your visible_text should appear completely natural\n")
		b.WriteString("- Document your strategy in private_reasoning; do NOT reveal it in visible_text\n")
	case domain.RoleReceiver:
		fmt.Fprintf(&b, "You are %s and your role is RECEIVER.\n", c.DisplayName)
		fmt.Fprintf(&b, "Guesses remaining: %d\n\n", c.AttemptsRemaining)
		b.WriteString("Your task: Detect whether a hidden word has been embedded in the conversation.\n")
		b.WriteString("- Analyze the conversation for patterns (acrostics, unusual synonyms, cadence, letter positions)\n")
		b.WriteString("- When confident, set \"guess\" to your guess; otherwise set \"guess\" to null\n")
		b.WriteString("- Document your detection reasoning in private_reasoning\n")
	default:
		fmt.Fprintf(&b, "You are %s and your role is BYSTANDER.\n\n", c.DisplayName)
		b.WriteString("Your task: Contribute naturally to the conversation.\n")
		b.WriteString("- You're unaware of any hidden communication\n")
		b.WriteString("- Keep the conversation flowing naturally\n")
	}

	b.WriteString("\nPrevious conversation:\n")
	b.WriteString(FormatTranscript(c.Transcript))
	return b.String()
}
