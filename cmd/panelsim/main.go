// Command panelsim plays the kiosk panel for local runs: it acknowledges
// speak commands with speech events and answers start_listening with
// scripted visitor questions.
package main

import (
	"flag"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"expo-kiosk-service/internal/service/voice/bridge"
)

var questions = []string{
	"hello there",
	"tell me about the solar tracker",
	"how are you",
	"what is smart irrigation",
	"how does the line follower work",
	"what's the weather like",
}

type panel struct {
	conn *websocket.Conn
	mu   sync.Mutex

	wordDelay time.Duration
	next      int

	listenMu  sync.Mutex
	listenGen int
}

func (p *panel) send(msg bridge.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.WriteJSON(msg); err != nil {
		log.Error().Err(err).Str("type", msg.Type).Msg("Write failed")
	}
}

// speak reports a synthetic utterance lasting wordDelay per word.
func (p *panel) speak(msg bridge.Message) {
	p.send(bridge.Message{Type: bridge.TypeSpeechStart, UtteranceID: msg.UtteranceID})
	words := len(strings.Fields(msg.Text))
	time.Sleep(time.Duration(words) * p.wordDelay)
	p.send(bridge.Message{Type: bridge.TypeSpeechEnd, UtteranceID: msg.UtteranceID})
}

// listen sends the next question word by word unless listening stops first.
func (p *panel) listen() {
	p.listenMu.Lock()
	p.listenGen++
	gen := p.listenGen
	question := questions[p.next%len(questions)]
	p.next++
	p.listenMu.Unlock()

	active := func() bool {
		p.listenMu.Lock()
		defer p.listenMu.Unlock()
		return gen == p.listenGen
	}

	time.Sleep(1500 * time.Millisecond)
	words := strings.Fields(question)
	for i := 1; i < len(words); i++ {
		if !active() {
			return
		}
		p.send(bridge.Message{Type: bridge.TypeTranscript, Text: strings.Join(words[:i], " ")})
		time.Sleep(250 * time.Millisecond)
	}
	if !active() {
		return
	}
	log.Info().Str("question", question).Msg("Visitor asks")
	p.send(bridge.Message{Type: bridge.TypeTranscript, Text: question, Final: true})
}

func (p *panel) stopListening() {
	p.listenMu.Lock()
	p.listenGen++
	p.listenMu.Unlock()
}

func main() {
	url := flag.String("url", "ws://localhost:8080/v1/voice/ws", "Kiosk voice websocket URL")
	wordDelay := flag.Duration("word-delay", 120*time.Millisecond, "Simulated speaking time per word")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		log.Fatal().Err(err).Str("url", *url).Msg("Failed to connect")
	}
	defer conn.Close()
	log.Info().Str("url", *url).Msg("Connected to kiosk")

	p := &panel{conn: conn, wordDelay: *wordDelay}

	yes := true
	p.send(bridge.Message{
		Type:                 bridge.TypeHello,
		SecureContext:        &yes,
		RecognitionSupported: &yes,
		MicrophoneAvailable:  &yes,
	})

	for {
		var msg bridge.Message
		if err := conn.ReadJSON(&msg); err != nil {
			log.Info().Err(err).Msg("Connection closed")
			return
		}

		switch msg.Type {
		case bridge.TypeSpeak:
			log.Info().Str("text", msg.Text).Msg("Kiosk says")
			go p.speak(msg)
		case bridge.TypeStartListening:
			if msg.Mode == bridge.ModeStream {
				log.Warn().Msg("Kiosk expects streamed audio; use audioclient instead")
				continue
			}
			log.Info().Msg("Listening")
			go p.listen()
		case bridge.TypeStopListening:
			p.stopListening()
		case bridge.TypeAlert:
			log.Warn().Str("text", msg.Text).Msg("Kiosk alert")
		case bridge.TypeState:
			if msg.State != nil {
				log.Debug().
					Str("state", msg.State.State).
					Int("persons", msg.State.PersonCount).
					Bool("close", msg.State.AnyClose).
					Msg("State")
			}
		}
	}
}
