package alarm

// Actor identifies who issued an operator request.
type Actor struct {
	// Hostname is the machine the request came from.
	Hostname string
	// Username is the system user who sent it.
	Username string
}

// Clone returns a deep copy of the actor.
func (a *Actor) Clone() *Actor {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}

// String returns user@host.
func (a *Actor) String() string {
	if a == nil {
		return "unknown"
	}

	return a.Username + "@" + a.Hostname
}
