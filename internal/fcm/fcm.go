// internal/fcm/fcm.go
package fcm

import (
	"context"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

type FCMClient struct {
	client *messaging.Client
}

func NewFCMClient(ctx context.Context, credentialsJSON []byte) (*FCMClient, error) {
	conf := &firebase.Config{}
	app, err := firebase.NewApp(ctx, conf, option.WithCredentialsJSON(credentialsJSON))
	if err != nil {
		return nil, fmt.Errorf("firebase init failed: %w", err)
	}

	messagingClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("messaging client init failed: %w", err)
	}

	return &FCMClient{client: messagingClient}, nil
}

func intPtr(i int) *int {
	return &i
}

// SendToTokens pushes one notification to a set of device tokens, batching at
// the FCM SendEach limit. Individual token failures are logged, not fatal —
// stale tokens are expected.
func (f *FCMClient) SendToTokens(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
	if len(tokens) == 0 {
		return nil
	}

	badge := intPtr(1)

	var messages []*messaging.Message
	for _, token := range tokens {
		messages = append(messages, &messaging.Message{
			Token: token,
			Notification: &messaging.Notification{
				Title: title,
				Body:  body,
			},
			Data: data,
			APNS: &messaging.APNSConfig{
				Payload: &messaging.APNSPayload{
					Aps: &messaging.Aps{
						Sound: "default",
						Badge: badge,
					},
				},
			},
			Android: &messaging.AndroidConfig{
				Notification: &messaging.AndroidNotification{
					Sound: "default",
				},
				Priority: "high",
			},
		})
	}

	// Send in batches of up to 500 (FCM SendEach limit)
	const batchSize = 500
	for i := 0; i < len(messages); i += batchSize {
		end := i + batchSize
		if end > len(messages) {
			end = len(messages)
		}

		batch := messages[i:end]
		resp, err := f.client.SendEach(ctx, batch)
		if err != nil {
			return fmt.Errorf("FCM batch[%d:%d] failed: %w", i, end, err)
		}

		for j, r := range resp.Responses {
			if !r.Success {
				log.Printf("⚠️ FCM token %s (idx %d in batch %d) failed: %v",
					maskToken(tokens[i+j]), j, i, r.Error)
			}
		}
	}

	return nil
}

// TokenSource resolves a crew code to its registered device tokens.
type TokenSource interface {
	CrewTokens(ctx context.Context, crewCode string) ([]string, error)
}

// CrewNotifier tells a crew's phones when a sync pass scheduled new jobs for
// them. Best effort — a push failure never affects the sync outcome.
type CrewNotifier struct {
	client *FCMClient
	tokens TokenSource
}

func NewCrewNotifier(client *FCMClient, tokens TokenSource) *CrewNotifier {
	return &CrewNotifier{client: client, tokens: tokens}
}

func (n *CrewNotifier) NotifyCrew(ctx context.Context, crewCode string, created int) {
	tokens, err := n.tokens.CrewTokens(ctx, crewCode)
	if err != nil {
		log.Printf("⚠️ [FCM] Could not load tokens for crew %s: %v", crewCode, err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	title := "New jobs scheduled"
	body := fmt.Sprintf("%d new job(s) were added to your schedule", created)
	if created == 1 {
		body = "1 new job was added to your schedule"
	}
	data := map[string]string{
		"crew_code": crewCode,
		"created":   fmt.Sprintf("%d", created),
	}

	if err := n.client.SendToTokens(ctx, tokens, title, body, data); err != nil {
		log.Printf("⚠️ [FCM] Push to crew %s failed: %v", crewCode, err)
		return
	}
	log.Printf("✅ [FCM] Notified crew %s on %d device(s)", crewCode, len(tokens))
}

// maskToken hides all but last 6 chars for logging safety
func maskToken(token string) string {
	if len(token) <= 6 {
		return token
	}
	return "..." + token[len(token)-6:]
}
