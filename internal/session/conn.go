package session

// Conn is the outbound half of a participant connection.
// Send must not block: implementations queue the event or fail fast.
type Conn interface {
	ID() string
	Send(ev Event) error
	Close() error
}
