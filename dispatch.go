package websocket

// event is a pending handler call.
type event struct {
	msg    *Message
	err    error
	closed bool
	code   StatusCode
}

// dispatch delivers queued events in order with mu released. A call made
// while another goroutine or an outer frame is dispatching returns at
// once; the running dispatcher picks up the new events.
func (s *Session) dispatch() {
	s.mu.Lock()
	if s.dispatching {
		s.mu.Unlock()
		return
	}
	s.dispatching = true
	defer func() {
		s.dispatching = false
		s.mu.Unlock()
	}()

	for s.events.Length() > 0 {
		s.deliver(s.events.Remove().(event))
	}
}

// deliver calls the handler for ev. mu is held on entry and on return.
func (s *Session) deliver(ev event) {
	onRead, onClose, onError := s.onRead, s.onClose, s.onError

	s.mu.Unlock()
	defer s.mu.Lock()

	switch {
	case ev.msg != nil:
		if onRead != nil {
			onRead(*ev.msg)
		}
	case ev.err != nil:
		if onError != nil {
			onError(ev.err)
		}
	case ev.closed:
		if onClose != nil {
			onClose(ev.code)
		}
	}
}
