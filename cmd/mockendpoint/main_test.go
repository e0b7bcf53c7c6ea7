package main

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/skypro1111/civic-voice-agent/internal/ticket"
	"github.com/skypro1111/civic-voice-agent/internal/transcript"
)

// The scripted conversation must carry the agent through a full happy path:
// the final turn has to survive payload extraction and produce a ticket
// with a substituted confirmation.
func TestScriptedConversationYieldsTicket(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	agg := transcript.NewAggregator()
	extractor := ticket.NewExtractor(logger, nil)

	var tk *ticket.Ticket
	var confirmation string
	for _, step := range conversationScript() {
		content := step.message.ServerContent
		if content == nil {
			continue
		}
		if content.InputTranscription != nil {
			agg.AppendUser(content.InputTranscription.Text)
		}
		if content.OutputTranscription != nil {
			agg.AppendAgent(content.OutputTranscription.Text)
		}
		if content.TurnComplete {
			_, agentText := agg.CompleteTurn()
			if tk != nil || agentText == "" {
				continue
			}
			if got, conf, ok := extractor.Extract(agentText, ""); ok {
				tk = got
				confirmation = conf
			}
		}
	}

	if tk == nil {
		t.Fatal("script never produced an extractable payload")
	}
	if tk.Category != ticket.CategoryRoad {
		t.Errorf("expected category %q, got %q", ticket.CategoryRoad, tk.Category)
	}
	if tk.Language != ticket.LanguageEnglish {
		t.Errorf("expected language %q, got %q", ticket.LanguageEnglish, tk.Language)
	}
	if confirmation == "" {
		t.Fatal("expected a confirmation message after the payload")
	}
	if !strings.Contains(confirmation, tk.TicketID) {
		t.Errorf("confirmation %q does not carry the minted ticket ID", confirmation)
	}
	if strings.Contains(confirmation, ticket.PlaceholderToken) {
		t.Errorf("placeholder left unsubstituted in %q", confirmation)
	}
}
