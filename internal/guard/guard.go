// Package guard gates every message write through content validation, spam
// heuristics and two rate-limit windows before anything reaches persistence.
package guard

import (
	"context"
	"strings"
	"time"

	"github.com/mentorlink/internal/logger"
	"github.com/mentorlink/internal/model"
	"github.com/mentorlink/internal/storage"
)

// Rejection codes. Stable: clients key off these to present an actionable
// message, do not rename.
const (
	CodeEmptyMessage  = "EMPTY_MESSAGE"
	CodeTooLong       = "MESSAGE_TOO_LONG"
	CodeSpamDetected  = "SPAM_DETECTED"
	CodeBurstExceeded = "MESSAGE_BURST_LIMIT_EXCEEDED"
	CodeRateExceeded  = "MESSAGE_RATE_LIMIT_EXCEEDED"
)

const (
	burstWindow = 10 * time.Second
	burstMax    = 3
	rateWindow  = 60 * time.Second
	rateMax     = 10

	logContentMax = 80
)

// Rejection is a structured refusal of a message write.
type Rejection struct {
	Status      int    `json:"-"`
	Message     string `json:"message"`
	Code        string `json:"code"`
	RetryAfter  int    `json:"retryAfter,omitempty"`  // seconds
	MaxRequests int    `json:"maxRequests,omitempty"`
	WindowMs    int    `json:"windowMs,omitempty"`
}

// Request is one message-write attempt as seen by the pipeline.
type Request struct {
	// Identity is the authenticated user id, falling back to the source
	// address for unauthenticated callers.
	Identity string
	Content  string
	// System marks operational messages (health checks, system broadcasts)
	// that always pass.
	System bool
}

// Pipeline runs the checks in order, cheapest first. A nil *Rejection means
// the write is accepted.
type Pipeline struct {
	store  storage.RateLimitStore
	bypass bool
}

func NewPipeline(store storage.RateLimitStore, bypass bool) *Pipeline {
	return &Pipeline{store: store, bypass: bypass}
}

// Check evaluates one write attempt. Counter-store failures are logged and
// treated as allowed: a broken Redis must not take messaging down with it.
func (p *Pipeline) Check(ctx context.Context, req Request) *Rejection {
	if p.bypass || req.System {
		return nil
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return p.reject(req, &Rejection{
			Status:  400,
			Message: "message content is empty",
			Code:    CodeEmptyMessage,
		})
	}
	if len([]rune(content)) > model.MaxContentLength {
		return p.reject(req, &Rejection{
			Status:  400,
			Message: "message exceeds 1000 characters",
			Code:    CodeTooLong,
		})
	}
	if IsSpam(content) {
		return p.reject(req, &Rejection{
			Status:  400,
			Message: "message looks like spam",
			Code:    CodeSpamDetected,
		})
	}

	allowed, err := p.store.Hit(ctx, "burst:"+req.Identity, burstWindow, burstMax)
	if err != nil {
		logger.Errorf("guard: burst counter for %s: %v (allowing)", req.Identity, err)
	} else if !allowed {
		return p.reject(req, &Rejection{
			Status:      429,
			Message:     "too many messages, slow down",
			Code:        CodeBurstExceeded,
			RetryAfter:  int(burstWindow / time.Second),
			MaxRequests: burstMax,
			WindowMs:    int(burstWindow / time.Millisecond),
		})
	}

	allowed, err = p.store.Hit(ctx, "rate:"+req.Identity, rateWindow, rateMax)
	if err != nil {
		logger.Errorf("guard: rate counter for %s: %v (allowing)", req.Identity, err)
	} else if !allowed {
		return p.reject(req, &Rejection{
			Status:      429,
			Message:     "message rate limit exceeded",
			Code:        CodeRateExceeded,
			RetryAfter:  int(rateWindow / time.Second),
			MaxRequests: rateMax,
			WindowMs:    int(rateWindow / time.Millisecond),
		})
	}

	return nil
}

// reject logs the refusal with truncated content for operator visibility.
// Accepted messages are never logged here.
func (p *Pipeline) reject(req Request, r *Rejection) *Rejection {
	content := req.Content
	if len(content) > logContentMax {
		content = content[:logContentMax] + "..."
	}
	logger.Infof("guard: rejected identity=%s code=%s content=%q", req.Identity, r.Code, content)
	return r
}
