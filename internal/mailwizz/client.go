// Package mailwizz wraps the external subscriber platform's API: subscriber
// create/update/unsubscribe/delete, transactional sends, and autoresponder
// stop marks. Callers treat every operation as best-effort; errors come back
// typed for logging but never carry partial state.
package mailwizz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/expatline/lifecycle-engine/internal/config"
	"github.com/expatline/lifecycle-engine/internal/pkg/httpretry"
)

const userAgent = "expatline-lifecycle-engine/1.0"

// ErrSubscriberNotFound is returned when every resolution strategy
// (update-by-id, lookup-by-email) failed to locate the subscriber.
var ErrSubscriberNotFound = errors.New("mailwizz: subscriber not found")

// Client is a subscriber platform API client.
type Client struct {
	baseURL    string
	apiKey     string
	listUID    string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a new subscriber platform client.
func NewClient(cfg config.MailWizzConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		listUID: cfg.ListUID,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, cfg.MaxRetries),
	}
}

// doRequest executes one API call. Body encoding follows the per-endpoint
// contract in endpointEncodings: form endpoints take a map[string]string
// payload, JSON endpoints take any marshalable value.
func (c *Client) doRequest(ctx context.Context, method, path, endpoint string, payload any) (*apiResponse, int, error) {
	var body io.Reader
	contentType := ""

	switch endpointEncodings[endpoint] {
	case EncodingJSON:
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	default:
		form := url.Values{}
		if fields, ok := payload.(map[string]string); ok {
			for k, v := range fields {
				form.Set(k, v)
			}
		}
		body = strings.NewReader(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Mw-Public-Key", c.apiKey)
	req.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}

	var parsed apiResponse
	if len(raw) > 0 {
		// Tolerate non-JSON error pages; status code drives the outcome
		_ = json.Unmarshal(raw, &parsed)
	}

	if resp.StatusCode == http.StatusNotFound {
		return &parsed, resp.StatusCode, ErrSubscriberNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := parsed.ErrorMessage()
		if msg == "" {
			msg = string(raw)
		}
		return &parsed, resp.StatusCode, fmt.Errorf("API error (status %d): %s", resp.StatusCode, msg)
	}

	return &parsed, resp.StatusCode, nil
}

// UpsertSubscriber creates a subscriber in the configured list, returning the
// platform's subscriber UID. The platform upserts on the EMAIL field.
func (c *Client) UpsertSubscriber(ctx context.Context, fields map[string]string) (string, error) {
	path := fmt.Sprintf("/lists/%s/subscribers", c.listUID)
	resp, _, err := c.doRequest(ctx, http.MethodPost, path, "subscriber.create", fields)
	if err != nil {
		return "", fmt.Errorf("creating subscriber: %w", err)
	}
	return resp.Data.Record.SubscriberUID, nil
}

// UpdateSubscriber updates subscriber fields by internal id. The platform may
// know the subscriber under either an opaque UID or the email, so the update
// is tried through an ordered list of resolution strategies:
//
//  1. update by the given id
//  2. look up the UID by email, then update by UID
//
// The email used for strategy 2 is taken from the EMAIL field when present.
// When every strategy fails, ErrSubscriberNotFound is returned.
func (c *Client) UpdateSubscriber(ctx context.Context, id string, fields map[string]string) error {
	err := c.updateByUID(ctx, id, fields)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrSubscriberNotFound) {
		return err
	}

	email := fields["EMAIL"]
	if email == "" {
		return ErrSubscriberNotFound
	}

	uid, lookupErr := c.LookupByEmail(ctx, email)
	if lookupErr != nil {
		return fmt.Errorf("lookup fallback: %w", lookupErr)
	}
	return c.updateByUID(ctx, uid, fields)
}

func (c *Client) updateByUID(ctx context.Context, uid string, fields map[string]string) error {
	path := fmt.Sprintf("/lists/%s/subscribers/%s", c.listUID, uid)
	_, _, err := c.doRequest(ctx, http.MethodPut, path, "subscriber.update", fields)
	if err != nil {
		if errors.Is(err, ErrSubscriberNotFound) {
			return ErrSubscriberNotFound
		}
		return fmt.Errorf("updating subscriber: %w", err)
	}
	return nil
}

// LookupByEmail resolves a subscriber UID from an email address.
func (c *Client) LookupByEmail(ctx context.Context, email string) (string, error) {
	path := fmt.Sprintf("/lists/%s/subscribers/search-by-email?EMAIL=%s", c.listUID, url.QueryEscape(email))
	resp, _, err := c.doRequest(ctx, http.MethodGet, path, "subscriber.search", nil)
	if err != nil {
		if errors.Is(err, ErrSubscriberNotFound) {
			return "", ErrSubscriberNotFound
		}
		return "", fmt.Errorf("searching subscriber: %w", err)
	}
	if resp.Data.Record.SubscriberUID == "" {
		return "", ErrSubscriberNotFound
	}
	return resp.Data.Record.SubscriberUID, nil
}

// Unsubscribe marks the subscriber unsubscribed on the platform.
func (c *Client) Unsubscribe(ctx context.Context, id string) error {
	path := fmt.Sprintf("/lists/%s/subscribers/%s/unsubscribe", c.listUID, id)
	_, _, err := c.doRequest(ctx, http.MethodPut, path, "subscriber.unsubscribe", nil)
	if err != nil {
		return fmt.Errorf("unsubscribing: %w", err)
	}
	return nil
}

// Delete removes the subscriber from the platform entirely.
func (c *Client) Delete(ctx context.Context, id string) error {
	path := fmt.Sprintf("/lists/%s/subscribers/%s", c.listUID, id)
	_, _, err := c.doRequest(ctx, http.MethodDelete, path, "subscriber.delete", nil)
	if err != nil {
		return fmt.Errorf("deleting subscriber: %w", err)
	}
	return nil
}

// SendTransactional sends one templated transactional email. templateKey is
// the fully composed template UID (e.g. "TR_CLI_profile-completed_ES").
func (c *Client) SendTransactional(ctx context.Context, to, templateKey string, customFields map[string]string) error {
	payload := transactionalRequest{
		ToEmail:      to,
		TemplateUID:  templateKey,
		CustomFields: customFields,
	}
	_, _, err := c.doRequest(ctx, http.MethodPost, "/transactional-emails", "transactional.send", payload)
	if err != nil {
		return fmt.Errorf("transactional send: %w", err)
	}
	return nil
}

// StopSequence silences the subscriber's autoresponder sequences by writing
// the two marker fields. reason is the joined list of matched stop reasons.
// id may be a subscriber UID or an email address; emails resolve through the
// update fallback chain.
func (c *Client) StopSequence(ctx context.Context, id, reason string) error {
	fields := map[string]string{
		FieldAutorespondersStopped: "yes",
		FieldAutorespondersReason:  reason,
	}
	if strings.Contains(id, "@") {
		fields["EMAIL"] = id
	}
	return c.UpdateSubscriber(ctx, id, fields)
}
