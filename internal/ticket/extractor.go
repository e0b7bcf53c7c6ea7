package ticket

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/skypro1111/civic-voice-agent/internal/metrics"
)

// PlaceholderToken is the literal marker the agent leaves in its trailing
// text; it is replaced with the minted ticket identifier before display.
const PlaceholderToken = "[TICKET_ID_PLACEHOLDER]"

const (
	ticketIDPrefix = "CIV-"
	ticketIDLength = 7
	ticketIDChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// The payload schema is a flat object, so the scan stops at the first
// closing brace. Nested objects yield no usable match by design.
var payloadPattern = regexp.MustCompile(`(?s)\{[^}]*\}`)

// Language is the conversation language captured in the payload.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageSpanish Language = "es"
)

// Category is the municipal service category of the request.
type Category string

const (
	CategoryRoad        Category = "road"
	CategoryWater       Category = "water"
	CategoryElectricity Category = "electricity"
	CategoryWaste       Category = "waste"
)

// Payload is the structured record embedded in the agent's final turn.
// The wire format carries exactly these keys.
type Payload struct {
	UserID        string   `json:"user_id"`
	Language      Language `json:"language"`
	Category      Category `json:"category"`
	Description   string   `json:"description"`
	PhotoAttached bool     `json:"photo_attached"`
	PhotoURL      string   `json:"photo_url"`
}

// Validate checks the enum fields against the payload schema.
func (p *Payload) Validate() error {
	switch p.Language {
	case LanguageEnglish, LanguageSpanish:
	default:
		return fmt.Errorf("invalid language %q", p.Language)
	}

	switch p.Category {
	case CategoryRoad, CategoryWater, CategoryElectricity, CategoryWaste:
	default:
		return fmt.Errorf("invalid category %q", p.Category)
	}

	return nil
}

// Ticket is a payload plus its locally minted identifier. Created at most
// once per session and immutable thereafter.
type Ticket struct {
	Payload
	TicketID string `json:"ticket_id"`
}

// Extractor scans finalized agent turns for embedded payloads.
type Extractor struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewExtractor creates a payload extractor.
func NewExtractor(logger *slog.Logger, m *metrics.Metrics) *Extractor {
	return &Extractor{logger: logger, metrics: m}
}

// Extract searches the finalized agent text for an embedded payload. If no
// payload is present, or the candidate is malformed, it returns ok=false
// and the conversation continues as ordinary turns. On success it returns
// the ticket and the confirmation message with the placeholder substituted.
// A locally attached photo reference overrides the parsed payload's claim
// about photo presence; local evidence is authoritative.
func (e *Extractor) Extract(agentText, photoRef string) (*Ticket, string, bool) {
	loc := payloadPattern.FindStringIndex(agentText)
	if loc == nil {
		return nil, "", false
	}

	var payload Payload
	if err := json.Unmarshal([]byte(agentText[loc[0]:loc[1]]), &payload); err != nil {
		e.logger.Warn("Discarding malformed embedded payload",
			slog.String("error", err.Error()),
		)
		e.metrics.RecordPayloadParseError()
		return nil, "", false
	}

	if err := payload.Validate(); err != nil {
		e.logger.Warn("Discarding payload with invalid schema",
			slog.String("error", err.Error()),
		)
		e.metrics.RecordPayloadParseError()
		return nil, "", false
	}

	ticketID := MintTicketID()

	if photoRef != "" {
		payload.PhotoAttached = true
		payload.PhotoURL = photoRef
	}

	confirmation := strings.TrimSpace(agentText[loc[1]:])
	confirmation = strings.ReplaceAll(confirmation, PlaceholderToken, ticketID)

	e.metrics.RecordTicketExtracted()
	e.logger.Info("Ticket payload extracted",
		slog.String("ticket_id", ticketID),
		slog.String("category", string(payload.Category)),
		slog.String("language", string(payload.Language)),
		slog.Bool("photo_attached", payload.PhotoAttached),
	)

	return &Ticket{Payload: payload, TicketID: ticketID}, confirmation, true
}

// MintTicketID generates a human-presentable ticket identifier with a fixed
// prefix and a random alphanumeric suffix. Collision probability within a
// single session is negligible.
func MintTicketID() string {
	buf := make([]byte, ticketIDLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the system entropy pool is broken;
		// fall back to a timestamp suffix rather than crash mid-session.
		return fmt.Sprintf("%s%07d", ticketIDPrefix, time.Now().UnixNano()%10000000)
	}
	for i, b := range buf {
		buf[i] = ticketIDChars[int(b)%len(ticketIDChars)]
	}
	return ticketIDPrefix + string(buf)
}

// Status is the lifecycle state reported by the mocked status lookup.
type Status string

const (
	StatusReceived  Status = "received"
	StatusInReview  Status = "in_review"
	StatusScheduled Status = "scheduled"
)

// StatusRecord is the mocked ticket-status lookup response.
type StatusRecord struct {
	TicketID  string    `json:"ticket_id"`
	Status    Status    `json:"status"`
	Note      string    `json:"note"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MockStatus returns a canned status record for a minted ticket. There is
// no real backend ticket system; this stands in for the downstream service.
func MockStatus(ticketID string) StatusRecord {
	return StatusRecord{
		TicketID:  ticketID,
		Status:    StatusReceived,
		Note:      "Your request has been received and is awaiting review.",
		UpdatedAt: time.Now().UTC(),
	}
}
