package broker

import "sync"

// FrameSink is where a session's outbound frames go. The dispatcher
// implements it; Enqueue must never block.
type FrameSink interface {
	Enqueue(frame []byte) bool
}

// session tracks one client id: the sink of the connection that currently
// owns it and the subscribed topics. Subscriptions map the topic name to the
// topic value they were made against, so a removal for a deleted topic
// cannot clobber a subscription to a recreated topic of the same name.
type session struct {
	sink FrameSink
	subs map[string]*topic
}

// sessionTable is the authoritative client id -> session map.
type sessionTable struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newSessionTable() *sessionTable {
	return &sessionTable{sessions: make(map[string]*session)}
}

// attach binds sink as the current owner of the client id, creating the
// session on first use. Idempotent; a reconnect rebinds the sink.
func (st *sessionTable) attach(clientID string, sink FrameSink) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.sessions[clientID]
	if s == nil {
		s = &session{subs: make(map[string]*topic)}
		st.sessions[clientID] = s
	}
	s.sink = sink
}

// detach removes the session and returns its subscriptions, but only when
// sink still owns it. A connection that lost the session to a newer one must
// not tear it down.
func (st *sessionTable) detach(clientID string, sink FrameSink) []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.sessions[clientID]
	if s == nil || s.sink != sink {
		return nil
	}
	topics := make([]string, 0, len(s.subs))
	for name := range s.subs {
		topics = append(topics, name)
	}
	delete(st.sessions, clientID)
	return topics
}

// sink resolves the dispatcher currently owning the client id, or nil.
func (st *sessionTable) sink(clientID string) FrameSink {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if s := st.sessions[clientID]; s != nil {
		return s.sink
	}
	return nil
}

// holds reports whether the session currently owning the client id is
// subscribed to this topic value. False when no session exists or when the
// subscription was made against another incarnation of the name.
func (st *sessionTable) holds(clientID string, t *topic) bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s := st.sessions[clientID]
	return s != nil && s.subs[t.name] == t
}

func (st *sessionTable) addSub(clientID string, t *topic) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s := st.sessions[clientID]; s != nil {
		s.subs[t.name] = t
	}
}

// removeSub drops the membership when it still points at t; a session left
// with no subscriptions is removed entirely.
func (st *sessionTable) removeSub(clientID string, t *topic) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.sessions[clientID]
	if s == nil || s.subs[t.name] != t {
		return
	}
	delete(s.subs, t.name)
	if len(s.subs) == 0 {
		delete(st.sessions, clientID)
	}
}

func (st *sessionTable) len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
