package ws

// Subscriber is one connected stream reader.
// Each subscriber gets a hub-unique numeric id, a message channel and a
// closeSlow callback.
type Subscriber struct {
	id        int
	messc     chan []byte // Channel for outgoing messages
	closeSlow func()
}

// ID returns the subscriber's id.
func (s *Subscriber) ID() int { return s.id }
