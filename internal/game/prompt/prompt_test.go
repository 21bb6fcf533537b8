package prompt

import (
	"strings"
	"testing"

	"github.com/louisbranch/undertone/internal/game/domain"
)

func promptTestView() *domain.LiveView {
	roster := []domain.Participant{
		{ID: "alice", DisplayName: "Alice", Role: domain.RoleCommunicator, Provider: "openai"},
		{ID: "bob", DisplayName: "Bob", Role: domain.RoleReceiver, Provider: "anthropic"},
		{ID: "carol", DisplayName: "Carol", Role: domain.RoleBystander, Provider: "google"},
	}
	view := domain.NewLiveView("sess-1", "deep sea exploration", "horizon", roster, 3)
	view.Transcript = []domain.TranscriptEntry{
		{Turn: 1, ParticipantID: "alice", ParticipantName: "Alice", VisibleText: "The ocean is vast.", PrivateReasoning: "embedding plan"},
	}
	return view
}

func TestForParticipantScopesSecretToCommunicator(t *testing.T) {
	view := promptTestView()

	comm := ForParticipant(view, view.Participants[0], nil)
	if comm.SecretWord != "horizon" {
		t.Fatalf("communicator secret = %q, want horizon", comm.SecretWord)
	}

	recv := ForParticipant(view, view.Participants[1], nil)
	if recv.SecretWord != "" {
		t.Fatal("receiver must not see the secret")
	}
	if recv.AttemptsRemaining != 3 {
		t.Fatalf("receiver attempts = %d, want 3", recv.AttemptsRemaining)
	}

	bystander := ForParticipant(view, view.Participants[2], nil)
	if bystander.SecretWord != "" || bystander.AttemptsRemaining != 0 {
		t.Fatalf("bystander context leaked role data: %+v", bystander)
	}
}

func TestForParticipantExcludesPrivateReasoning(t *testing.T) {
	view := promptTestView()

	ctx := ForParticipant(view, view.Participants[1], []domain.TranscriptEntry{
		{Turn: 2, ParticipantID: "alice", ParticipantName: "Alice", VisibleText: "Another clue.", PrivateReasoning: "secret plan"},
	})

	rendered := ctx.Render()
	if strings.Contains(rendered, "embedding plan") || strings.Contains(rendered, "secret plan") {
		t.Fatal("private reasoning leaked into prompt context")
	}
	if !strings.Contains(rendered, "Alice: The ocean is vast.") {
		t.Fatal("visible history missing from prompt")
	}
	if !strings.Contains(rendered, "Alice: Another clue.") {
		t.Fatal("same-round entries missing from prompt")
	}
}

func TestForParticipantIncludesEarlierRoundEntries(t *testing.T) {
	view := promptTestView()

	ctx := ForParticipant(view, view.Participants[2], []domain.TranscriptEntry{
		{Turn: 2, ParticipantID: "bob", ParticipantName: "Bob", VisibleText: "Interesting currents."},
	})

	if len(ctx.Transcript) != 2 {
		t.Fatalf("transcript lines = %d, want 2", len(ctx.Transcript))
	}
	last := ctx.Transcript[1]
	if last.Speaker != "Bob" || last.Text != "Interesting currents." {
		t.Fatalf("unexpected last line: %+v", last)
	}
}

func TestFormatTranscriptEmpty(t *testing.T) {
	got := FormatTranscript(nil)
	if !strings.Contains(got, "No messages yet") {
		t.Fatalf("unexpected empty-transcript text: %q", got)
	}
}

func TestRenderMentionsRole(t *testing.T) {
	view := promptTestView()

	tests := []struct {
		participant domain.Participant
		want        string
	}{
		{view.Participants[0], "COMMUNICATOR"},
		{view.Participants[1], "RECEIVER"},
		{view.Participants[2], "BYSTANDER"},
	}
	for _, tc := range tests {
		rendered := ForParticipant(view, tc.participant, nil).Render()
		if !strings.Contains(rendered, tc.want) {
			t.Fatalf("prompt for %s missing %q", tc.participant.ID, tc.want)
		}
		if !strings.Contains(rendered, "deep sea exploration") {
			t.Fatalf("prompt for %s missing topic", tc.participant.ID)
		}
	}
}
