package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type relaySender struct {
	url        string
	httpClient *http.Client
}

type relayMessage struct {
	To      string `json:"to"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Kind    Kind   `json:"template"`
	Data    any    `json:"data"`
}

// NewRelaySender returns a Sender that posts each notification as JSON to a
// mail relay, which renders the template and delivers it.
func NewRelaySender(url string) (Sender, error) {
	if url == "" {
		return nil, fmt.Errorf("mail relay url is required")
	}
	s := &relaySender{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	return s, nil
}

func (s *relaySender) Send(ctx context.Context, to, name, subject string, kind Kind, payload any) error {
	if to == "" {
		return fmt.Errorf("no address for %s, not sending %s", name, kind)
	}

	body, err := json.Marshal(relayMessage{To: to, Name: name, Subject: subject, Kind: kind, Data: payload})
	if err != nil {
		return fmt.Errorf("error encoding %s payload: %w", kind, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status code from mail relay: %d", resp.StatusCode)
	}
	return nil
}
