// Package relay delivers plain-text messages to a phone number through an
// HTTP messaging gateway (WhatsApp-style relay).
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"
)

const defaultTimeout = 10 * time.Second

var (
	// ErrNotConfigured means there is no gateway URL or credential to send with.
	ErrNotConfigured = errors.New("relay not configured")
	// ErrRejected marks a 4xx answer; resending the same message will not help.
	ErrRejected = errors.New("relay rejected message")
)

// Client represents the messaging gateway HTTP client.
type Client struct {
	baseURL string
	ua      string
	http    *http.Client
}

// Message is one outbound text.
type Message struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// NewClient creates a new relay client.
func NewClient(baseURL string, timeout time.Duration, ua string) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		ua:      ua,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Enabled reports whether a gateway URL is configured.
func (c *Client) Enabled() bool {
	return c != nil && strings.TrimSpace(c.baseURL) != ""
}

// Send posts one message using the given API credential.
func (c *Client) Send(ctx context.Context, credential string, msg Message) error {
	if !c.Enabled() {
		return fmt.Errorf("%w: base_url is empty", ErrNotConfigured)
	}
	if strings.TrimSpace(credential) == "" {
		return fmt.Errorf("%w: credential is empty", ErrNotConfigured)
	}
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("relay request error: recipient is empty")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("relay request error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("relay request error: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)
	if c.ua != "" {
		req.Header.Set("User-Agent", c.ua)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyRequestError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if readErr != nil {
		body = []byte("<failed to read body: " + readErr.Error() + ">")
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("%w: status=%d body=%s", ErrRejected, resp.StatusCode, string(body))
	}
	return fmt.Errorf("relay http error: status=%d body=%s", resp.StatusCode, string(body))
}

// Retryable reports whether resending might succeed.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrRejected) && !errors.Is(err, ErrNotConfigured)
}

func classifyRequestError(ctx context.Context, err error) error {
	if isTimeoutError(ctx, err) {
		return fmt.Errorf("relay timeout: %w", err)
	}
	if isNetworkError(err) {
		return fmt.Errorf("relay network error: %w", err)
	}
	return fmt.Errorf("relay request error: %w", err)
}

func isTimeoutError(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isNetworkError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH)
}
