package stripeclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCreatePaymentIntent_SendsFormAndDecodes(t *testing.T) {
	var gotForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		user, _, ok := r.BasicAuth()
		if !ok || user != "sk_test_123" {
			t.Errorf("expected basic auth with secret key, got %q", user)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = map[string]string{}
		for key := range r.PostForm {
			gotForm[key] = r.PostForm.Get(key)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"pi_1","amount":2500,"currency":"usd","status":"requires_payment_method","client_secret":"pi_1_secret_abc","metadata":{"userId":"7"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test_123")
	intent, err := client.CreatePaymentIntent(context.Background(), PaymentIntentParams{
		Amount:   2500,
		Metadata: map[string]string{"userId": "7", "planType": "unlimited"},
	})
	if err != nil {
		t.Fatalf("CreatePaymentIntent returned error: %v", err)
	}
	if intent.ClientSecret != "pi_1_secret_abc" {
		t.Fatalf("unexpected client secret %q", intent.ClientSecret)
	}

	want := map[string]string{
		"amount":                             "2500",
		"currency":                           "usd",
		"automatic_payment_methods[enabled]": "true",
		"metadata[userId]":                   "7",
		"metadata[planType]":                 "unlimited",
	}
	for key, value := range want {
		if gotForm[key] != value {
			t.Fatalf("form field %s: expected %q, got %q", key, value, gotForm[key])
		}
	}
}

func TestCreatePaymentIntent_SurfacesStripeMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Amount must be at least $0.50 usd"}}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "sk_test_123").CreatePaymentIntent(context.Background(), PaymentIntentParams{Amount: 10})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || !strings.Contains(apiErr.Error(), "at least") {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestCreatePaymentIntent_RequiresSecretKey(t *testing.T) {
	_, err := NewClient("", "").CreatePaymentIntent(context.Background(), PaymentIntentParams{Amount: 100})
	if err == nil {
		t.Fatal("expected error without secret key")
	}
}

func TestConstructEvent(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","amount":1000,"metadata":{"userId":"3"}}}}`)
	now := time.Unix(1_700_000_000, 0)
	secret := "whsec_test"

	tests := []struct {
		name    string
		header  string
		now     time.Time
		wantErr error
	}{
		{name: "valid", header: SignatureHeaderValue(payload, secret, now), now: now},
		{name: "wrong secret", header: SignatureHeaderValue(payload, "other", now), now: now, wantErr: ErrMissingSignature},
		{name: "too old", header: SignatureHeaderValue(payload, secret, now), now: now.Add(6 * time.Minute), wantErr: ErrTooOld},
		{name: "missing header", header: "", now: now, wantErr: ErrInvalidHeader},
		{name: "no timestamp", header: "v1=abcd", now: now, wantErr: ErrInvalidHeader},
		{name: "no v1", header: "t=1700000000", now: now, wantErr: ErrMissingSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := ConstructEvent(payload, tt.header, secret, tt.now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			intent, err := event.PaymentIntent()
			if err != nil {
				t.Fatalf("PaymentIntent returned error: %v", err)
			}
			if event.ID != "evt_1" || intent.ID != "pi_1" || intent.Metadata["userId"] != "3" {
				t.Fatalf("unexpected event %+v intent %+v", event, intent)
			}
		})
	}
}

func TestConstructEvent_TamperedPayload(t *testing.T) {
	now := time.Now()
	header := SignatureHeaderValue([]byte(`{"id":"evt_1","type":"x"}`), "whsec", now)
	if _, err := ConstructEvent([]byte(`{"id":"evt_2","type":"x"}`), header, "whsec", now); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected signature mismatch, got %v", err)
	}
}
