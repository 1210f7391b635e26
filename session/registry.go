package session

import (
	"net"
	"sync"

	"github.com/watchtower-mqtt/vigil/packet"
)

// WillPublisher feeds a will's content into the same publish-handling path
// as a client-originated PUBLISH. The registry never touches the retained
// log or fanout directly; it calls back into the broker through this
// narrow interface.
type WillPublisher interface {
	PublishWill(clientID string, w *Will) error
}

// Registry is the client_id -> Session map. A single mutex guards short
// critical sections only (insert, state update, will take); it is never
// held across I/O.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	willPub  WillPublisher
}

func NewRegistry(willPub WillPublisher) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		willPub:  willPub,
	}
}

// AddNewUser allocates a new Session for clientID bound to conn and
// installs it in the registry, storing the will if one was carried on the
// CONNECT.
func (r *Registry) AddNewUser(conn net.Conn, clientID string, connect packet.Connect) *Session {
	sess := New(clientID, conn)
	if connect.HasWill {
		sess.SetWill(&Will{
			Content: connect.WillMessage,
			Topic:   connect.WillTopic,
			QoS:     connect.WillQoS,
			Retain:  connect.WillRetain,
		})
	}

	r.mu.Lock()
	r.sessions[clientID] = sess
	r.mu.Unlock()

	return sess
}

// ReconnectOutcome describes how ManagePossibleReconnectingOrDuplicate
// resolved a newly-accepted CONNECT against the existing registry state.
type ReconnectOutcome int

const (
	// OutcomeNewUser: client_id was unknown; caller should call
	// AddNewUser.
	OutcomeNewUser ReconnectOutcome = iota
	// OutcomeDuplicate: client_id was Active on another stream. The
	// incumbent session is untouched and returned so the caller can
	// evict it (sending DISCONNECT through the incumbent's own write
	// channel); the caller must still call AddNewUser for the new
	// connection, exactly as for OutcomeNewUser, since a duplicate is
	// not a reconnection and gets a fresh session (no carried-over
	// subscriptions, cursors, or will).
	OutcomeDuplicate
	// OutcomeReconnect: client_id was TemporarilyDisconnected; the new
	// stream has been swapped in and replay has been triggered by the
	// caller (registry only swaps the stream and reports which topics to
	// replay).
	OutcomeReconnect
)

// ManagePossibleReconnectingOrDuplicate resolves clientID against the
// registry:
//   - unknown: returns (OutcomeNewUser, nil, nil).
//   - Active: a duplicate client_id. The existing session is left exactly
//     as it is — not reused, not reassigned to newConn — and returned as
//     the incumbent so the caller can evict it. The caller is responsible
//     for calling AddNewUser to register a fresh session for newConn.
//   - TemporarilyDisconnected: a reconnection. The new stream is swapped
//     in, state becomes Active, and the session (with its topic list for
//     replay) is returned.
func (r *Registry) ManagePossibleReconnectingOrDuplicate(clientID string, newConn net.Conn) (ReconnectOutcome, *Session, *Session) {
	r.mu.Lock()
	sess, ok := r.sessions[clientID]
	r.mu.Unlock()

	if !ok {
		return OutcomeNewUser, nil, nil
	}

	if sess.State() == StateActive {
		return OutcomeDuplicate, nil, sess
	}

	sess.SwapConn(newConn)
	return OutcomeReconnect, sess, nil
}

// SetTemporarilyDisconnected marks sess as TemporarilyDisconnected,
// called by the reader when its stream observes EOF. sess is mutated
// directly rather than re-resolved through the clientID map, so a stale
// reader for a session that has since been superseded (e.g. evicted by a
// duplicate CONNECT) can never clobber the state of the session that
// replaced it.
func (r *Registry) SetTemporarilyDisconnected(sess *Session) {
	sess.SetTemporarilyDisconnected()
}

// RemoveUser deletes sess from the registry, but only if it is still the
// session currently registered for its client_id — a stale reader whose
// session has already been superseded by a newer connection for the same
// client_id is a no-op rather than deleting the new session out from
// under it.
func (r *Registry) RemoveUser(sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clientID := sess.ClientID()
	if r.sessions[clientID] == sess {
		delete(r.sessions, clientID)
	}
}

// PublishUsersWillMessage builds a PUBLISH from sess's stored will (if
// any) and feeds it into the broker's publish path. Safe to call exactly
// once per terminal disconnect: TakeWill empties the session's will field
// so a second call is a no-op. Operates on sess directly rather than a
// clientID lookup, for the same stale-session reason as RemoveUser.
func (r *Registry) PublishUsersWillMessage(sess *Session) error {
	w := sess.TakeWill()
	if w == nil {
		return nil
	}
	return r.willPub.PublishWill(sess.ClientID(), w)
}

// AddTopics subscribes clientID to each requested topic and returns a
// QoS1 grant for every entry, aligned positionally with the request. The
// broker always advertises QoS1 regardless of the client-requested QoS
// (Open Question decided in DESIGN.md).
func (r *Registry) AddTopics(clientID string, topics []packet.SubscribeTopic) ([]packet.SubackCode, error) {
	r.mu.Lock()
	sess, ok := r.sessions[clientID]
	r.mu.Unlock()
	if !ok {
		return nil, ErrUnknownClient
	}

	codes := make([]packet.SubackCode, len(topics))
	for i, t := range topics {
		sess.AddTopic(t.Topic)
		codes[i] = packet.SubackQoS1
	}
	return codes, nil
}

// Get returns clientID's session, if any.
func (r *Registry) Get(clientID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[clientID]
	return sess, ok
}

// Subscribers returns every session currently subscribed to topic, for
// fanout.
func (r *Registry) Subscribers(topic string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0)
	for _, sess := range r.sessions {
		if sess.IsSubscribed(topic) {
			out = append(out, sess)
		}
	}
	return out
}
