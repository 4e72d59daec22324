// Package push stores Web Push subscriptions in Redis and delivers
// notifications over VAPID. Delivery is best effort: a user with no live
// subscriptions, or a notifier without keys, silently drops the notification.
package push

import (
	"context"
	"encoding/json"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/redis/go-redis/v9"

	"github.com/mentorlink/internal/logger"
)

const (
	redisKeyPrefix  = "push:subs:"
	maxSubsPerUser  = 10
	subscriptionTTL = 30 * 24 * time.Hour
	sendTimeout     = 10 * time.Second
)

// Subscription mirrors the browser PushSubscription JSON shape.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// Notifier sends Web Push notifications to a user's registered subscriptions.
type Notifier struct {
	redis *redis.Client
	vapid *webpush.Options
}

// NewNotifier builds a notifier. keys may be nil: subscriptions are still
// stored, but Notify becomes a no-op until keys are configured.
func NewNotifier(rdb *redis.Client, keys *VAPIDKeys) *Notifier {
	n := &Notifier{redis: rdb}
	if keys != nil && keys.PublicKey != "" && keys.PrivateKey != "" {
		n.vapid = &webpush.Options{
			Subscriber:      "mentorlink-push",
			VAPIDPublicKey:  keys.PublicKey,
			VAPIDPrivateKey: keys.PrivateKey,
			TTL:             30,
		}
	}
	return n
}

// PublicKey returns the VAPID public key clients need to subscribe,
// or "" when push is not configured.
func (n *Notifier) PublicKey() string {
	if n.vapid == nil {
		return ""
	}
	return n.vapid.VAPIDPublicKey
}

// Subscribe registers a browser subscription for the user. Each user keeps at
// most maxSubsPerUser subscriptions; the oldest are trimmed away.
func (n *Notifier) Subscribe(ctx context.Context, userID string, sub Subscription) error {
	raw, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	key := redisKeyPrefix + userID
	pipe := n.redis.Pipeline()
	pipe.RPush(ctx, key, string(raw))
	pipe.LTrim(ctx, key, -maxSubsPerUser, -1)
	pipe.Expire(ctx, key, subscriptionTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// Unsubscribe removes the subscription with the given endpoint.
func (n *Notifier) Unsubscribe(ctx context.Context, userID, endpoint string) error {
	return n.removeSubscription(ctx, userID, endpoint)
}

// Notify delivers a notification to every subscription the user has.
// Expired subscriptions (410/404 from the push endpoint) are dropped.
func (n *Notifier) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	if n.vapid == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	subs, err := n.subscriptions(ctx, userID)
	if err != nil {
		logger.Errorf("push: load subscriptions for %s: %v", userID, err)
		return
	}
	if len(subs) == 0 {
		return
	}
	payload, _ := json.Marshal(map[string]any{"title": title, "body": body, "data": data})
	for i := range subs {
		sub := &subs[i]
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
		}
		resp, err := webpush.SendNotificationWithContext(ctx, payload, wpSub, n.vapid)
		if err != nil {
			logger.Errorf("push: send to %s: %v", truncateEndpoint(sub.Endpoint), err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == 410 || resp.StatusCode == 404 {
			n.removeSubscription(ctx, userID, sub.Endpoint)
		}
	}
}

func (n *Notifier) subscriptions(ctx context.Context, userID string) ([]Subscription, error) {
	list, err := n.redis.LRange(ctx, redisKeyPrefix+userID, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	var subs []Subscription
	for _, item := range list {
		var sub Subscription
		if json.Unmarshal([]byte(item), &sub) == nil && sub.Endpoint != "" {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (n *Notifier) removeSubscription(ctx context.Context, userID, endpoint string) error {
	key := redisKeyPrefix + userID
	list, err := n.redis.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return err
	}
	var kept []string
	for _, item := range list {
		var sub Subscription
		if json.Unmarshal([]byte(item), &sub) == nil && sub.Endpoint != endpoint {
			kept = append(kept, item)
		}
	}
	pipe := n.redis.Pipeline()
	pipe.Del(ctx, key)
	for _, v := range kept {
		pipe.RPush(ctx, key, v)
	}
	if len(kept) > 0 {
		pipe.Expire(ctx, key, subscriptionTTL)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func truncateEndpoint(e string) string {
	if len(e) > 50 {
		return e[:50]
	}
	return e
}
