// internal/status/snapshot.go
package status

// Snapshot is the current health of one device.
// It contains no memory of the past beyond current state.
type Snapshot struct {
	Health         uint16
	LastErrorCode  uint16 // modbus.CodeOf of the last failure; 0 when healthy
	SecondsInError uint16

	// Failed reads since the last successful one. Not part of change detection.
	ConsecutiveFailures uint32
}

// sameState compares the fields that make up a health transition.
func (s Snapshot) sameState(o Snapshot) bool {
	return s.Health == o.Health &&
		s.LastErrorCode == o.LastErrorCode &&
		s.SecondsInError == o.SecondsInError
}
