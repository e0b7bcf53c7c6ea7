// Mock live endpoint for local development. It speaks the same JSON
// websocket protocol as the real conversational endpoint and plays a
// scripted pothole conversation: user transcription, an agent reply with
// synthesized audio, and a final turn carrying the service-request payload.
//
// Usage:
//
//	go run ./cmd/mockendpoint
//	# point the agent at ws://localhost:9100/live
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

type serverMessage struct {
	ServerContent *serverContent `json:"serverContent,omitempty"`
}

type serverContent struct {
	InputTranscription  *transcriptionPart `json:"inputTranscription,omitempty"`
	OutputTranscription *transcriptionPart `json:"outputTranscription,omitempty"`
	TurnComplete        bool               `json:"turnComplete,omitempty"`
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

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// scriptStep is one outbound message with a delay before it is sent.
type scriptStep struct {
	delay   time.Duration
	message serverMessage
}

func conversationScript() []scriptStep {
	payload := `{"user_id": "anonymous_voice_user", "language": "en", ` +
		`"category": "road", "description": "Large pothole on Main Street near the bus stop", ` +
		`"photo_attached": false, "photo_url": ""}`

	return []scriptStep{
		{2 * time.Second, serverMessage{ServerContent: &serverContent{
			InputTranscription: &transcriptionPart{Text: "There is a large pothole "},
		}}},
		{300 * time.Millisecond, serverMessage{ServerContent: &serverContent{
			InputTranscription: &transcriptionPart{Text: "on Main Street near the bus stop."},
		}}},
		{500 * time.Millisecond, serverMessage{ServerContent: &serverContent{
			OutputTranscription: &transcriptionPart{Text: "Thanks, I have noted a pothole on Main Street. "},
		}}},
		{100 * time.Millisecond, serverMessage{ServerContent: &serverContent{
			ModelTurn: &modelTurn{Parts: []contentPart{{InlineData: &inlineData{
				Data:     toneChunk(440, time.Second),
				MimeType: "audio/pcm;rate=24000",
			}}}},
		}}},
		{200 * time.Millisecond, serverMessage{ServerContent: &serverContent{
			OutputTranscription: &transcriptionPart{Text: "Shall I file the request?"},
		}}},
		{100 * time.Millisecond, serverMessage{ServerContent: &serverContent{
			TurnComplete: true,
		}}},
		{2 * time.Second, serverMessage{ServerContent: &serverContent{
			InputTranscription: &transcriptionPart{Text: "Yes, please file it."},
		}}},
		// Payload first: everything after it becomes the confirmation text.
		{500 * time.Millisecond, serverMessage{ServerContent: &serverContent{
			OutputTranscription: &transcriptionPart{
				Text: payload + " Your request has been filed. Your ticket number is [TICKET_ID_PLACEHOLDER].",
			},
		}}},
		{100 * time.Millisecond, serverMessage{ServerContent: &serverContent{
			ModelTurn: &modelTurn{Parts: []contentPart{{InlineData: &inlineData{
				Data:     toneChunk(523, 800*time.Millisecond),
				MimeType: "audio/pcm;rate=24000",
			}}}},
		}}},
		{100 * time.Millisecond, serverMessage{ServerContent: &serverContent{
			TurnComplete: true,
		}}},
	}
}

// toneChunk synthesizes a base64 PCM16 sine tone at 24 kHz so the agent has
// real audio to schedule.
func toneChunk(freq float64, d time.Duration) string {
	const sampleRate = 24000
	n := int(d.Seconds() * sampleRate)
	raw := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(math.Sin(2*math.Pi*freq*float64(i)/sampleRate) * 8000)
		raw[i*2] = byte(v)
		raw[i*2+1] = byte(uint16(v) >> 8)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("🔌 Client connected from %s", r.RemoteAddr)

	var g errgroup.Group

	// Drain client messages: the setup message and the audio frames. Frames
	// are counted but otherwise ignored; the conversation is scripted.
	g.Go(func() error {
		frames := 0
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				log.Printf("📴 Client read ended after %d frames: %v", frames, err)
				return nil
			}
			var msg map[string]json.RawMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if _, ok := msg["setup"]; ok {
				log.Printf("⚙️  Setup received (%d bytes)", len(data))
				continue
			}
			if _, ok := msg["realtimeInput"]; ok {
				frames++
				if frames%50 == 0 {
					log.Printf("🎤 %d audio frames received", frames)
				}
			}
		}
	})

	g.Go(func() error {
		for _, step := range conversationScript() {
			time.Sleep(step.delay)
			if err := conn.WriteJSON(step.message); err != nil {
				log.Printf("write failed: %v", err)
				return nil
			}
		}
		log.Printf("✅ Script finished, closing connection")
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "script complete"))
		// Give the close frame time to flush before the deferred Close.
		time.Sleep(200 * time.Millisecond)
		conn.Close()
		return nil
	})

	g.Wait()
}

func main() {
	addr := flag.String("addr", ":9100", "listen address")
	flag.Parse()

	http.HandleFunc("/live", handleLive)

	log.Printf("🚀 Mock live endpoint starting on %s", *addr)
	log.Printf("📡 Endpoint: ws://localhost%s/live", *addr)
	log.Println("💡 Update your config to use: ws://localhost:9100/live")

	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
