package activitymap

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-print"

	auth "github.com/photolog/photolog-auth"
)

const (
	// MetadataKeyActorType stores the actor type derived from auth.ActorRef.Type.
	MetadataKeyActorType = "actor_type"
	// MetadataKeyFromStatus stores the source account status for suspensions.
	MetadataKeyFromStatus = "from_status"
	// MetadataKeyToStatus stores the target account status for suspensions.
	MetadataKeyToStatus = "to_status"
)

const (
	ChannelSession = "session"
	ChannelAdmin   = "admin"

	defaultObjectType = "account"
	defaultActorID    = "anonymous"
)

// Record is the audit shape of an activity event, safe to ship off the device.
type Record struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization.
type Option func(*options)

type options struct {
	channel       string
	actorFallback string
	maskEmails    bool
}

// WithChannel forces the channel instead of deriving it from the event type.
func WithChannel(channel string) Option {
	return func(o *options) {
		o.channel = strings.TrimSpace(channel)
	}
}

// WithActorFallback sets the actor id used when neither actor nor user id is known,
// i.e. a failed sign in.
func WithActorFallback(actorID string) Option {
	return func(o *options) {
		o.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithEmailMasking toggles masking of email metadata. On by default.
func WithEmailMasking(enabled bool) Option {
	return func(o *options) {
		o.maskEmails = enabled
	}
}

// Normalize converts an auth.ActivityEvent into a Record.
func Normalize(event auth.ActivityEvent, opts ...Option) Record {
	o := options{actorFallback: defaultActorID, maskEmails: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	channel := o.channel
	if channel == "" {
		channel = channelFor(event.EventType)
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Record{
		ActorID:    firstNonEmpty(strings.TrimSpace(event.Actor.ID), strings.TrimSpace(event.UserID), o.actorFallback),
		Verb:       string(event.EventType),
		ObjectType: defaultObjectType,
		ObjectID:   strings.TrimSpace(event.UserID),
		Channel:    channel,
		Metadata:   metadata(event, o.maskEmails),
		OccurredAt: occurredAt,
	}
}

// NewSink returns an ActivitySink that normalizes every event and hands the
// record to emit.
func NewSink(emit func(ctx context.Context, record Record) error, opts ...Option) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(ctx context.Context, event auth.ActivityEvent) error {
		if emit == nil {
			return nil
		}
		return emit(ctx, Normalize(event, opts...))
	})
}

// NewLogSink logs every record at debug level.
func NewLogSink(logger auth.Logger, opts ...Option) auth.ActivitySink {
	return NewSink(func(_ context.Context, record Record) error {
		logger.Debug("activity %s actor=%s channel=%s %s", record.Verb, record.ActorID, record.Channel, print.MaybePrettyJSON(record.Metadata))
		return nil
	}, opts...)
}

func channelFor(eventType auth.ActivityEventType) string {
	if eventType == auth.ActivityEventUserStatusChanged {
		return ChannelAdmin
	}
	return ChannelSession
}

func metadata(event auth.ActivityEvent, maskEmails bool) map[string]any {
	var out map[string]any
	set := func(k string, v any) {
		if out == nil {
			out = map[string]any{}
		}
		out[k] = v
	}

	for k, v := range event.Metadata {
		if s, ok := v.(string); ok && maskEmails && k == "email" {
			v = MaskEmail(s)
		}
		set(k, v)
	}

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if _, exists := out[MetadataKeyActorType]; !exists {
			set(MetadataKeyActorType, actorType)
		}
	}
	if event.FromStatus != "" {
		set(MetadataKeyFromStatus, string(event.FromStatus))
	}
	if event.ToStatus != "" {
		set(MetadataKeyToStatus, string(event.ToStatus))
	}
	return out
}

// MaskEmail keeps the first letter of the local part and the domain,
// "host@example.com" becomes "h***@example.com".
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
