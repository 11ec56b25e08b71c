// README: Firebase Cloud Messaging transport for per-responder alerts.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"firebase.google.com/go/v4/messaging"

	"herodispatch/internal/types"
)

// TokenSource resolves a responder's FCM device token. An empty token means
// the responder has no registered device.
type TokenSource interface {
	DeviceToken(ctx context.Context, responderID types.ID) (string, error)
}

// Messenger is the subset of *messaging.Client used for delivery.
type Messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMTransport pushes user-addressed envelopes to the recipient's device.
// Incident-room envelopes are left to the realtime transports.
type FCMTransport struct {
	client Messenger
	tokens TokenSource
}

func NewFCMTransport(client Messenger, tokens TokenSource) *FCMTransport {
	return &FCMTransport{client: client, tokens: tokens}
}

func (t *FCMTransport) Deliver(ctx context.Context, env Envelope) error {
	if env.Recipient.Audience != AudienceUser {
		return nil
	}
	token, err := t.tokens.DeviceToken(ctx, env.Recipient.ID)
	if err != nil {
		return fmt.Errorf("%w: device token for %s: %v", ErrDelivery, env.Recipient.ID, err)
	}
	if token == "" {
		return nil
	}
	msg, err := buildMessage(token, env)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	if _, err := t.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("%w: fcm send to %s: %v", ErrDelivery, env.Recipient.ID, err)
	}
	return nil
}

func buildMessage(token string, env Envelope) (*messaging.Message, error) {
	payload, err := json.Marshal(env.Event)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", env.Event.Kind(), err)
	}
	msg := &messaging.Message{
		Token: token,
		Data: map[string]string{
			"type":        env.Event.Kind(),
			"incident_id": string(env.IncidentID),
			"payload":     string(payload),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}

	switch ev := env.Event.(type) {
	case TierAlert:
		msg.Notification = &messaging.Notification{
			Title: alertTitle(ev.Summary),
			Body:  fmt.Sprintf("%s km away. %s responders needed.", formatKm(ev.DistanceKm), ev.Tier),
		}
	case ResourceAlert:
		msg.Notification = &messaging.Notification{
			Title: "Urgent: " + ev.Resource + " blood needed",
			Body:  fmt.Sprintf("%s km away. Your blood group matches.", formatKm(ev.DistanceKm)),
		}
	case HelperAccepted:
		msg.Notification = &messaging.Notification{
			Title: "Help is on the way",
			Body:  fmt.Sprintf("A responder accepted. ETA %d min.", ev.ETAMinutes),
		}
	}
	return msg, nil
}

func alertTitle(s Summary) string {
	if s.Severity == "critical" {
		return "CRITICAL emergency nearby"
	}
	return "Emergency nearby"
}

func formatKm(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
