package core

// Requester is the already-authenticated principal on whose behalf an
// operation runs. Authentication itself happens upstream; the core only
// checks flags.
type Requester struct {
	ID         string
	IsAdmin    bool
	IsInternal bool
	IsBanned   bool
	IsActive   bool
}

// Check validates the requester for a read-style operation.
func (r *Requester) Check() error {
	if r == nil || r.ID == "" {
		return ErrParameter
	}
	if r.IsBanned {
		return ErrAccess
	}
	return nil
}

// CheckActive validates the requester for a mutating operation.
func (r *Requester) CheckActive() error {
	if err := r.Check(); err != nil {
		return err
	}
	if !r.IsActive {
		return ErrAccess
	}
	return nil
}

// CheckInternal validates that the requester is an internal system user.
// Heartbeats and player connect/disconnect reports only come from the game
// server processes themselves.
func (r *Requester) CheckInternal() error {
	if err := r.CheckActive(); err != nil {
		return err
	}
	if !r.IsInternal {
		return ErrAccess
	}
	return nil
}
