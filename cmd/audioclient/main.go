// Command audioclient streams a WAV file to the kiosk as a panel in stream
// mode, so recognition runs server-side.
package main

import (
	"encoding/binary"
	"flag"
	"io"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"expo-kiosk-service/internal/service/voice/bridge"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// Stream audio in chunks to simulate real-time streaming
// At 16kHz 16-bit mono = 32000 bytes/second
// 100ms chunks = 3200 bytes
const chunkSize = 3200
const chunkIntervalMs = 100

func main() {
	audioFile := flag.String("audio", "testdata/question-16khz.wav", "Path to WAV file (16kHz 16-bit mono)")
	url := flag.String("url", "ws://localhost:8080/v1/voice/ws", "Kiosk voice websocket URL")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open audio file")
	}
	defer f.Close()

	// Read and validate WAV header
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatal().Err(err).Msg("Failed to read WAV header")
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal().Msg("Not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Info().
		Uint16("format", audioFormat).
		Uint16("channels", numChannels).
		Uint32("sampleRate", sampleRate).
		Uint16("bitsPerSample", bitsPerSample).
		Msg("WAV file")

	if audioFormat != 1 { // PCM
		log.Fatal().Msg("Only PCM format supported")
	}
	if sampleRate != 16000 {
		log.Warn().Uint32("sampleRate", sampleRate).Msg("Expected 16000 Hz")
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		log.Fatal().Err(err).Str("url", *url).Msg("Failed to connect")
	}
	defer conn.Close()
	log.Info().Str("url", *url).Msg("Connected to kiosk")

	var writeMu sync.Mutex
	write := func(messageType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(messageType, data)
	}
	writeJSON := func(msg bridge.Message) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(msg); err != nil {
			log.Error().Err(err).Str("type", msg.Type).Msg("Write failed")
		}
	}

	yes := true
	writeJSON(bridge.Message{Type: bridge.TypeHello, SecureContext: &yes, RecognitionSupported: &yes, MicrophoneAvailable: &yes})

	start := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg bridge.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Type {
			case bridge.TypeStartListening:
				if msg.Mode != bridge.ModeStream {
					log.Warn().Str("mode", msg.Mode).Msg("Kiosk is not in stream mode (set STT_PROVIDER)")
					continue
				}
				select {
				case start <- struct{}{}:
				default:
				}
			case bridge.TypeSpeak:
				log.Info().Str("text", msg.Text).Msg("Kiosk says")
				writeJSON(bridge.Message{Type: bridge.TypeSpeechStart, UtteranceID: msg.UtteranceID})
				writeJSON(bridge.Message{Type: bridge.TypeSpeechEnd, UtteranceID: msg.UtteranceID})
			case bridge.TypeState:
				if msg.State != nil && msg.State.Transcript != "" {
					log.Info().Str("transcript", msg.State.Transcript).Msg("Recognised so far")
				}
			case bridge.TypeAlert:
				log.Warn().Str("text", msg.Text).Msg("Kiosk alert")
			}
		}
	}()

	log.Info().Msg("Waiting for the kiosk to start listening...")
	select {
	case <-start:
	case <-done:
		log.Fatal().Msg("Connection closed before listening started")
	}

	audioChunk := make([]byte, chunkSize)
	var totalBytes int64
	var chunkNum int
	startTime := time.Now()

	for {
		n, err := f.Read(audioChunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read audio")
		}

		chunkNum++
		totalBytes += int64(n)
		if err := write(websocket.BinaryMessage, audioChunk[:n]); err != nil {
			log.Fatal().Err(err).Msg("Failed to send audio")
		}
		if chunkNum%10 == 0 {
			log.Debug().Int("chunk", chunkNum).Int64("bytes", totalBytes).Msg("Sent audio")
		}

		// Simulate real-time streaming
		time.Sleep(chunkIntervalMs * time.Millisecond)
	}

	log.Info().
		Int("chunks", chunkNum).
		Int64("bytes", totalBytes).
		Dur("elapsed", time.Since(startTime)).
		Msg("Finished streaming, waiting for the answer")

	select {
	case <-done:
	case <-time.After(10 * time.Second):
	}
}
