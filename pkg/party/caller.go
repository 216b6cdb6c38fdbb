package party

// Caller describes the authenticated origin of a request: who is asking,
// and whether they hold the operator role. It is produced by the identity
// layer upstream; the game engine trusts what it is handed.
type Caller struct {
	ID    ID
	Admin bool
}

// User wraps an address as a regular, non operator caller.
func User(id ID) Caller { return Caller{ID: id} }

// Operator wraps an address as an operator caller.
func Operator(id ID) Caller { return Caller{ID: id, Admin: true} }
