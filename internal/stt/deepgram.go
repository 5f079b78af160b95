package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/rs/zerolog"
)

const deepgramWSURL = "wss://api.deepgram.com/v1/listen"

// chunkSize keeps individual websocket frames small.
const chunkSize = 8 * 1024

// DeepgramConfig holds configuration for the Deepgram client.
type DeepgramConfig struct {
	APIKey    string
	URL       string // defaults to the hosted listen endpoint
	Language  string // e.g. "en"
	Model     string // e.g. "nova-3"
	Punctuate bool
	// Encoding and SampleRate are only needed for raw audio. Containerised
	// clips (mp3, webm) are detected by the provider.
	Encoding   string
	SampleRate int
}

func (c DeepgramConfig) listenURL() string {
	base := c.URL
	if base == "" {
		base = deepgramWSURL
	}
	q := url.Values{}
	if c.Model != "" {
		q.Set("model", c.Model)
	}
	if c.Language != "" {
		q.Set("language", c.Language)
	}
	if c.Encoding != "" {
		q.Set("encoding", c.Encoding)
	}
	if c.SampleRate > 0 {
		q.Set("sample_rate", strconv.Itoa(c.SampleRate))
	}
	q.Set("punctuate", strconv.FormatBool(c.Punctuate))
	return base + "?" + q.Encode()
}

// deepgramResponse represents a Deepgram WebSocket response.
type deepgramResponse struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal     bool `json:"is_final"`
	SpeechFinal bool `json:"speech_final"`
}

// DeepgramStream implements Stream over Deepgram's streaming API.
type DeepgramStream struct {
	conn      *websocket.Conn
	results   chan TranscriptResult
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	wg        sync.WaitGroup // Wait for readLoop to finish
	log       zerolog.Logger
}

// DialDeepgram opens a streaming session.
func DialDeepgram(ctx context.Context, cfg DeepgramConfig, log zerolog.Logger) (*DeepgramStream, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Token "+cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.listenURL(), headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Deepgram: %w", err)
	}

	s := &DeepgramStream{
		conn:    conn,
		results: make(chan TranscriptResult, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
		log:     log,
	}
	s.wg.Add(1)
	go s.readLoop()
	return s, nil
}

// StreamAudio sends audio data to Deepgram.
func (s *DeepgramStream) StreamAudio(_ context.Context, audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return fmt.Errorf("stream is closed")
	default:
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, audio)
}

// Finish sends CloseStream. Deepgram flushes its final results and then
// closes the socket, which ends readLoop.
func (s *DeepgramStream) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "CloseStream"}`))
}

func (s *DeepgramStream) Results() <-chan TranscriptResult {
	return s.results
}

func (s *DeepgramStream) Errors() <-chan error {
	return s.errors
}

// Close closes the Deepgram connection.
func (s *DeepgramStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
		// Wait for readLoop before closing channels.
		s.wg.Wait()
		close(s.errors)
	})
	return err
}

// readLoop reads responses from Deepgram and sends them to the results
// channel. Results is closed when the provider ends the stream.
func (s *DeepgramStream) readLoop() {
	defer s.wg.Done()
	defer close(s.results)

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			select {
			case <-s.done:
			case s.errors <- fmt.Errorf("read error: %w", err):
			default:
			}
			return
		}

		var resp deepgramResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			s.log.Warn().Err(err).Msg("failed to parse deepgram response")
			continue
		}
		if resp.Type != "Results" {
			continue
		}

		var result TranscriptResult
		if len(resp.Channel.Alternatives) > 0 {
			alt := resp.Channel.Alternatives[0]
			result.Text = alt.Transcript
			result.Confidence = alt.Confidence
		}
		result.SegmentFinal = resp.IsFinal
		result.SpeechFinal = resp.SpeechFinal

		if result.Text == "" && !result.SegmentFinal && !result.SpeechFinal {
			continue
		}

		select {
		case <-s.done:
			return
		case s.results <- result:
		}
	}
}

// Deepgram transcribes whole recorded clips by streaming them through a
// short-lived Deepgram session.
type Deepgram struct {
	cfg DeepgramConfig
	log zerolog.Logger
}

var _ core.Transcriber = (*Deepgram)(nil)

func NewDeepgram(cfg DeepgramConfig, log zerolog.Logger) *Deepgram {
	return &Deepgram{cfg: cfg, log: log.With().Str("component", "stt").Logger()}
}

// Transcribe returns the joined final segments of the clip. Any provider
// failure, or a clip with no recognised speech, is core.ErrTranscription.
func (d *Deepgram) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", core.ErrEmptyAudio
	}

	stream, err := DialDeepgram(ctx, d.cfg, d.log)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrTranscription, err)
	}
	defer stream.Close()

	for off := 0; off < len(audio); off += chunkSize {
		end := min(off+chunkSize, len(audio))
		if err := stream.StreamAudio(ctx, audio[off:end]); err != nil {
			return "", fmt.Errorf("%w: send audio: %w", core.ErrTranscription, err)
		}
	}
	if err := stream.Finish(); err != nil {
		return "", fmt.Errorf("%w: finish stream: %w", core.ErrTranscription, err)
	}

	text, err := collect(ctx, stream)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrTranscription, err)
	}
	if text == "" {
		return "", fmt.Errorf("%w: no speech recognised", core.ErrTranscription)
	}
	d.log.Debug().Int("bytes", len(audio)).Int("chars", len(text)).Msg("clip transcribed")
	return text, nil
}

func collect(ctx context.Context, s Stream) (string, error) {
	var parts []string
	results := s.Results()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case err := <-s.Errors():
			if err != nil {
				return "", err
			}
		case r, ok := <-results:
			if !ok {
				return strings.Join(parts, " "), nil
			}
			if r.SegmentFinal && strings.TrimSpace(r.Text) != "" {
				parts = append(parts, strings.TrimSpace(r.Text))
			}
		}
	}
}

// errNoKey is returned by NewTranscriber when no provider is configured.
var errNoKey = errors.New("deepgram api key not configured")

// NewTranscriber returns a Deepgram transcriber, or an error when the key is
// missing.
func NewTranscriber(cfg DeepgramConfig, log zerolog.Logger) (core.Transcriber, error) {
	if cfg.APIKey == "" {
		return nil, errNoKey
	}
	return NewDeepgram(cfg, log), nil
}
