package generate

import (
	"fmt"
	"strings"
	"time"

	"github.com/persona-worlds/brainstorm-api/internal/model"
)

// OpeningMessage synthesizes the system message that prefixes every
// generated discussion, regardless of which strategy produced it.
func OpeningMessage(theme string) model.DiscussionMessage {
	return model.DiscussionMessage{
		Speaker:   model.SpeakerSystem,
		Content:   fmt.Sprintf("Opening the discussion on %q.", theme),
		Timestamp: time.Now().UTC(),
	}
}

// discussionBrief renders the shared framing given to every AI-backed
// strategy: world setting, theme, and the participant roster.
func discussionBrief(req *Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "World setting: %s\n\n", req.WorldBack)
	fmt.Fprintf(&b, "Discussion theme: %s\n", req.Theme)
	if req.Description != "" {
		fmt.Fprintf(&b, "Details: %s\n", req.Description)
	}
	b.WriteString("\nParticipants:\n")
	for _, p := range req.Personas {
		fmt.Fprintf(&b, "- %s: %s\n", p.Name, p.Description)
	}
	return b.String()
}

// personaPrompt renders the instruction for one persona's turn, given
// the transcript so far.
func personaPrompt(req *Request, persona model.Character, transcript []model.DiscussionMessage) string {
	var b strings.Builder
	b.WriteString(discussionBrief(req))
	if len(transcript) > 0 {
		b.WriteString("\nDiscussion so far:\n")
		for _, m := range transcript {
			fmt.Fprintf(&b, "%s: %s\n", m.Speaker, m.Content)
		}
	}
	fmt.Fprintf(&b,
		"\nYou are %s. Personality: %s. Background: %s.\n"+
			"Contribute your perspective on the theme in two or three sentences, in character. "+
			"Reply with the contribution only.",
		persona.Name, persona.Personality, persona.Background)
	return b.String()
}
