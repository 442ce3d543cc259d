package websocket

// Message is a complete data message reassembled from one or more frames.
// The receiver owns Payload once the message is delivered.
type Message struct {
	// Opcode is OpText or OpBinary.
	Opcode  Opcode
	Payload []byte
}

// Text returns the payload as a string.
func (m Message) Text() string {
	return string(m.Payload)
}
