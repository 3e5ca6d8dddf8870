package stripeclient

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the header Stripe signs webhook deliveries with.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance bounds the age of a signed webhook timestamp.
const DefaultTolerance = 5 * time.Minute

var (
	ErrMissingSignature = errors.New("no signatures found matching the expected signature for payload")
	ErrInvalidHeader    = errors.New("unable to extract timestamp and signatures from header")
	ErrTooOld           = errors.New("timestamp outside the tolerance zone")
)

// Event is a Stripe webhook event envelope.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// PaymentIntent decodes the event object as a payment intent.
func (e *Event) PaymentIntent() (*PaymentIntent, error) {
	var intent PaymentIntent
	if err := json.Unmarshal(e.Data.Object, &intent); err != nil {
		return nil, fmt.Errorf("failed to decode payment intent: %w", err)
	}
	return &intent, nil
}

// ConstructEvent verifies the signature header against payload and decodes the event.
func ConstructEvent(payload []byte, header string, secret string, now time.Time) (*Event, error) {
	if err := VerifySignature(payload, header, secret, now, DefaultTolerance); err != nil {
		return nil, err
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse webhook body json: %w", err)
	}
	if event.ID == "" || event.Type == "" {
		return nil, errors.New("webhook event is missing id or type")
	}
	return &event, nil
}

// VerifySignature checks a "t=<unix>,v1=<hex>" header. Any matching v1
// signature is accepted.
func VerifySignature(payload []byte, header string, secret string, now time.Time, tolerance time.Duration) error {
	if strings.TrimSpace(header) == "" {
		return ErrInvalidHeader
	}

	var (
		timestamp  int64
		haveTime   bool
		signatures [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return ErrInvalidHeader
			}
			timestamp = parsed
			haveTime = true
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}
	if !haveTime {
		return ErrInvalidHeader
	}
	if len(signatures) == 0 {
		return ErrMissingSignature
	}

	expected := computeSignature(payload, secret, timestamp)
	matched := false
	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			matched = true
			break
		}
	}
	if !matched {
		return ErrMissingSignature
	}

	if tolerance > 0 {
		age := now.Sub(time.Unix(timestamp, 0))
		if age > tolerance || age < -tolerance {
			return ErrTooOld
		}
	}
	return nil
}

// SignatureHeaderValue builds a header value for payload, as Stripe would send it.
func SignatureHeaderValue(payload []byte, secret string, at time.Time) string {
	timestamp := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(computeSignature(payload, secret, timestamp)))
}

func computeSignature(payload []byte, secret string, timestamp int64) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}
