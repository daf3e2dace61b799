package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the configuration leaves topic_prefix blank.
const DefaultTopicPrefix = "identity"

// Topics builds the identity service's MQTT topic names under a prefix.
//
//	topics := mqtt.NewTopics("identity")
//	topics.Event("UserLoggedIn")  // identity/event/UserLoggedIn
//	topics.AllEvents()            // identity/event/#
//	topics.SystemStatus()         // identity/system/status
type Topics struct {
	Prefix string
}

// NewTopics returns a builder for prefix, falling back to DefaultTopicPrefix.
// Leading and trailing slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Event returns the topic a domain event of the given type is published on.
func (t Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", t.prefix(), eventType)
}

// AllEvents returns the wildcard matching every domain event topic.
func (t Topics) AllEvents() string {
	return t.prefix() + "/event/#"
}

// SystemStatus returns the retained online/offline status topic.
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// EventType extracts the event type from a topic produced by Event.
// It reports false for topics outside this prefix's event tree.
func (t Topics) EventType(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/event/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

// ValidateSegment reports whether s can be used as a single topic level.
// MQTT wildcards and separators are rejected.
func ValidateSegment(s string) error {
	if s == "" {
		return ErrInvalidTopic
	}
	if strings.ContainsAny(s, "/+#\x00") {
		return fmt.Errorf("%w: %q contains a reserved character", ErrInvalidTopic, s)
	}
	return nil
}
