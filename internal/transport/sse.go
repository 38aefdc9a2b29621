package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tmaxmax/go-sse"

	"github.com/vitalink/vitalink/internal/logging"
)

const sseEndpointWait = 10 * time.Second

// SSEBinding holds a long-lived event-stream connection to a provider. The
// provider announces a session-paired submission endpoint in its first
// "endpoint" event; outgoing payloads are POSTed there while incoming
// payloads arrive as "message" events.
type SSEBinding struct {
	httpClient *http.Client
	messageURL string

	messages chan []byte
	cancel   context.CancelFunc
}

// OpenSSE connects to the provider's events URL and waits for the submission
// endpoint announcement before returning.
func OpenSSE(ctx context.Context, eventsURL string) (*SSEBinding, error) {
	base, err := url.Parse(eventsURL)
	if err != nil {
		return nil, fmt.Errorf("parse events URL: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, eventsURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create events request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("connect to provider events: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("provider events returned status %d", resp.StatusCode)
	}

	b := &SSEBinding{
		httpClient: &http.Client{},
		messages:   make(chan []byte, 8),
		cancel:     cancel,
	}

	endpoint := make(chan string, 1)
	go b.listen(resp.Body, endpoint)

	timer := time.NewTimer(sseEndpointWait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		b.Close()
		return nil, ctx.Err()
	case <-timer.C:
		b.Close()
		return nil, errors.New("provider did not announce a submission endpoint")
	case raw, ok := <-endpoint:
		if !ok {
			b.Close()
			return nil, errors.New("event stream closed before endpoint announcement")
		}
		ref, err := url.Parse(raw)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("parse submission endpoint: %w", err)
		}
		b.messageURL = base.ResolveReference(ref).String()
	}

	return b, nil
}

func (b *SSEBinding) listen(body io.ReadCloser, endpoint chan<- string) {
	defer func() {
		body.Close()
		close(b.messages)
		close(endpoint)
	}()

	for ev, err := range sse.Read(body, nil) {
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logging.LogEvent("event stream read failed: %v", err)
			}
			return
		}
		switch ev.Type {
		case "endpoint":
			select {
			case endpoint <- ev.Data:
			default:
			}
		case "message":
			b.messages <- []byte(ev.Data)
		default:
			logging.LogEvent("event stream: unhandled event type %q", ev.Type)
		}
	}
}

// Send POSTs one payload to the session's submission endpoint.
func (b *SSEBinding) Send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.messageURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("submit message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("submission endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Receive yields the next payload pushed by the provider.
func (b *SSEBinding) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case payload, ok := <-b.messages:
		if !ok {
			return nil, io.EOF
		}
		return payload, nil
	}
}

// Close tears down the event stream. Idempotent.
func (b *SSEBinding) Close() error {
	b.cancel()
	return nil
}
