package mqtt

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "tswrite"

// Topics builds the topics tswrite publishes to.
//
//	topics := mqtt.NewTopics("site1/tswrite")
//	topics.DeadLetter("buffer_overrun") // "site1/tswrite/deadletter/buffer_overrun"
type Topics struct {
	prefix string
}

// NewTopics returns a builder rooted at prefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Status is the retained online/offline topic.
func (t Topics) Status() string {
	return t.root() + "/status"
}

// DeadLetter is the topic for loss reports of the given kind.
func (t Topics) DeadLetter(kind string) string {
	return t.root() + "/deadletter/" + kind
}

func (t Topics) root() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}
