package session

// State represents the lifecycle state of one kind's session.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateCreating      State = "creating"
	StateReady         State = "ready"
	StateDisposed      State = "disposed"
)

// Activation is the direct-interaction authorization required to start the
// first session creation for a kind. The host-integration layer mints one
// only inside a genuine user interaction; this package does not verify
// authenticity, it only refuses creation without one so background work
// cannot acquire capabilities by accident.
type Activation struct {
	granted bool
}

// UserActivation mints an Activation. Callers must only do so while
// handling a direct user interaction.
func UserActivation() Activation { return Activation{granted: true} }

// Granted reports whether the token was minted (the zero value was not).
func (a Activation) Granted() bool { return a.granted }
