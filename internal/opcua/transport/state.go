package transport

// state is the per-connection lifecycle state, owned exclusively by the read
// loop: no other goroutine inspects or mutates it directly. Cross-goroutine
// visibility of termination goes through TcpTransport.finished/finishCode
// instead.
type state int

const (
	stateNew state = iota
	stateWaitingHello
	stateProcessMessages
	stateFinished
)

func (s state) String() string {
	switch s {
	case stateNew:
		return "New"
	case stateWaitingHello:
		return "WaitingHello"
	case stateProcessMessages:
		return "ProcessMessages"
	case stateFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}
