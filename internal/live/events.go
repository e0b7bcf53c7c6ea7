package live

// EventType identifies an inbound stream event.
type EventType string

const (
	// EventInputTranscript carries a partial transcription fragment of the
	// user's speech.
	EventInputTranscript EventType = "input_transcript"
	// EventOutputTranscript carries a partial transcription fragment of the
	// agent's speech.
	EventOutputTranscript EventType = "output_transcript"
	// EventAudio carries one transport-encoded chunk of synthesized speech.
	EventAudio EventType = "audio"
	// EventTurnComplete marks a turn boundary.
	EventTurnComplete EventType = "turn_complete"
	// EventInterrupted signals that the agent's speech was cut off by user
	// barge-in; all scheduled playback must be cancelled.
	EventInterrupted EventType = "interrupted"
	// EventError is terminal for the stream.
	EventError EventType = "error"
	// EventClosed is the last event delivered before the event channel
	// closes.
	EventClosed EventType = "closed"
)

// Event is one inbound message from the remote endpoint, delivered in
// arrival order.
type Event struct {
	Type     EventType
	Text     string // transcription fragment
	Audio    string // transport-encoded PCM16 for EventAudio
	MimeType string
	Err      error // set for EventError
}

// Wire types for the JSON message protocol.

type serverMessage struct {
	ServerContent *serverContent `json:"serverContent,omitempty"`
	Error         *serverError   `json:"error,omitempty"`
}

type serverContent struct {
	InputTranscription  *transcriptionPart `json:"inputTranscription,omitempty"`
	OutputTranscription *transcriptionPart `json:"outputTranscription,omitempty"`
	TurnComplete        bool               `json:"turnComplete,omitempty"`
	Interrupted         bool               `json:"interrupted,omitempty"`
	ModelTurn           *modelTurn         `json:"modelTurn,omitempty"`
}

type transcriptionPart struct {
	Text string `json:"text"`
}

type modelTurn struct {
	Parts []contentPart `json:"parts"`
}

type contentPart struct {
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

type serverError struct {
	Message string `json:"message"`
}

type clientMessage struct {
	Setup         *setupMessage  `json:"setup,omitempty"`
	RealtimeInput *realtimeInput `json:"realtimeInput,omitempty"`
}

type setupMessage struct {
	Model                    string   `json:"model"`
	SystemInstruction        string   `json:"systemInstruction"`
	Voice                    string   `json:"voice"`
	ResponseModalities       []string `json:"responseModalities"`
	InputAudioTranscription  bool     `json:"inputAudioTranscription"`
	OutputAudioTranscription bool     `json:"outputAudioTranscription"`
}

type realtimeInput struct {
	Media mediaBlob `json:"media"`
}

type mediaBlob struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}
