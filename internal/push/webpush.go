package push

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
)

const (
	defaultTTL     = 24 * time.Hour
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
)

// WebPushConfig holds VAPID credentials and delivery options.
type WebPushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string // contact URL or e-mail address
	TTL             time.Duration
	Urgency         string
	Timeout         time.Duration
	HTTPClient      *http.Client
}

// WebPushChannel sends RFC 8291 encrypted messages signed with VAPID.
type WebPushChannel struct {
	cfg    WebPushConfig
	client *http.Client
}

// NewWebPushChannel validates the configuration. Missing keys yield ErrNotConfigured,
// a pair that is not a matching P-256 key pair yields ErrInvalidKeys.
func NewWebPushChannel(cfg WebPushConfig) (*WebPushChannel, error) {
	cfg.VAPIDPublicKey = strings.TrimSpace(cfg.VAPIDPublicKey)
	cfg.VAPIDPrivateKey = strings.TrimSpace(cfg.VAPIDPrivateKey)
	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		return nil, ErrNotConfigured
	}
	if err := checkVAPIDKeys(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Subject) == "" {
		return nil, errors.New("push: vapid subject is required")
	}
	cfg.Subject = strings.TrimPrefix(strings.TrimSpace(cfg.Subject), "mailto:")
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &WebPushChannel{cfg: cfg, client: client}, nil
}

// PublicKey returns the VAPID application server key handed to browsers.
func (c *WebPushChannel) PublicKey() string {
	return c.cfg.VAPIDPublicKey
}

// Send implements Channel.
func (c *WebPushChannel) Send(ctx context.Context, target Target, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: target.Endpoint,
		Keys: webpush.Keys{
			Auth:   target.Auth,
			P256dh: target.P256dh,
		},
	}, &webpush.Options{
		HTTPClient:      c.client,
		Subscriber:      c.cfg.Subject,
		TTL:             int(c.cfg.TTL / time.Second),
		Urgency:         webpush.Urgency(c.cfg.Urgency),
		VAPIDPublicKey:  c.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: c.cfg.VAPIDPrivateKey,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// checkVAPIDKeys requires a 32-byte P-256 scalar whose public point is the given 65-byte key.
func checkVAPIDKeys(publicKey, privateKey string) error {
	public, err := decodeVAPIDKey(publicKey)
	if err != nil {
		return fmt.Errorf("%w: public key: %v", ErrInvalidKeys, err)
	}
	if len(public) != 65 || public[0] != 0x04 {
		return fmt.Errorf("%w: public key must be an uncompressed P-256 point", ErrInvalidKeys)
	}
	private, err := decodeVAPIDKey(privateKey)
	if err != nil {
		return fmt.Errorf("%w: private key: %v", ErrInvalidKeys, err)
	}
	key, err := ecdh.P256().NewPrivateKey(private)
	if err != nil {
		return fmt.Errorf("%w: private key: %v", ErrInvalidKeys, err)
	}
	if !bytes.Equal(key.PublicKey().Bytes(), public) {
		return fmt.Errorf("%w: public key does not match private key", ErrInvalidKeys)
	}
	return nil
}

// decodeVAPIDKey accepts base64url or standard base64, padded or not.
func decodeVAPIDKey(value string) ([]byte, error) {
	value = strings.TrimRight(value, "=")
	if decoded, err := base64.RawURLEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	return base64.RawStdEncoding.DecodeString(value)
}

// GenerateVAPIDKeys creates a new application server key pair.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	return publicKey, privateKey, err
}
