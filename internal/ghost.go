package internal

// GhostMaterial is the local projection of a material owned by another user.
type GhostMaterial struct {
	Material
	UserID    string
	UserColor string
	Nickname  string
}

// Label is what the renderer prints on the ghost: the owner's nickname, or the
// first six characters of the owner's id.
func (g GhostMaterial) Label() string {
	if g.Nickname != "" {
		return g.Nickname
	}
	if g.UserID != "" {
		return shortID(g.UserID)
	}
	return "User"
}

// Reconciler applies relayed operations to the set of ghosts. At most one ghost
// exists per (owner, material) pair. It is not safe for concurrent use; feed it
// from the same loop that renders.
type Reconciler struct {
	selfID   string
	ghosts   map[string]*GhostMaterial
	order    []string
	renderer Renderer
}

func NewReconciler(renderer Renderer) *Reconciler {
	if renderer == nil {
		renderer = nopRenderer{}
	}
	return &Reconciler{ghosts: make(map[string]*GhostMaterial), renderer: renderer}
}

func (r *Reconciler) SetRenderer(renderer Renderer) {
	if renderer == nil {
		renderer = nopRenderer{}
	}
	r.renderer = renderer
}

// SetSelf records the local user id; operations stamped with it are ignored.
func (r *Reconciler) SetSelf(userID string) {
	r.selfID = userID
}

// Apply folds one relayed operation into the ghost set and reports whether
// anything changed.
func (r *Reconciler) Apply(op RelayedOperation) bool {
	if op.UserID == "" || op.UserID == r.selfID {
		return false
	}
	changed := false
	switch body := op.Op.(type) {
	case AddMaterial:
		key := GhostID(op.UserID, body.MaterialID)
		r.remove(key)
		r.ghosts[key] = &GhostMaterial{
			Material: Material{
				ID:     key,
				URL:    body.MaterialURL,
				X:      body.X,
				Y:      body.Y,
				Width:  body.Width,
				Height: body.Height,
			},
			UserID:    op.UserID,
			UserColor: op.Color,
			Nickname:  op.Nickname,
		}
		r.order = append(r.order, key)
		changed = true
	case MoveMaterial:
		if ghost, ok := r.ghosts[GhostID(op.UserID, body.MaterialID)]; ok {
			ghost.X, ghost.Y = body.X, body.Y
			changed = true
		}
	case ResizeMaterial:
		if ghost, ok := r.ghosts[GhostID(op.UserID, body.MaterialID)]; ok {
			ghost.Width, ghost.Height = body.Width, body.Height
			changed = true
		}
	case DeleteMaterial:
		changed = r.remove(GhostID(op.UserID, body.MaterialID))
	case BackgroundChanged:
		// informational; backgrounds stay local
	}
	if changed {
		r.reindex()
		r.renderer.Redraw()
	}
	return changed
}

// HandleEvent routes a synchronizer event to the matching ghost transition.
// Presence events other than departures leave ghosts alone.
func (r *Reconciler) HandleEvent(event ServerEvent) bool {
	switch ev := event.(type) {
	case PeerJoined:
		if ev.Self {
			r.SetSelf(ev.Peer.UserID)
		}
	case OperationReceived:
		return r.Apply(ev.Op)
	case PeerLeft:
		return r.RemoveUser(ev.UserID) > 0
	case Disconnected:
		had := r.Len() > 0
		r.Clear()
		return had
	}
	return false
}

// RemoveUser drops every ghost owned by userID and returns how many went away.
func (r *Reconciler) RemoveUser(userID string) int {
	removed := 0
	kept := r.order[:0]
	for _, key := range r.order {
		if r.ghosts[key].UserID == userID {
			delete(r.ghosts, key)
			removed++
			continue
		}
		kept = append(kept, key)
	}
	r.order = kept
	if removed > 0 {
		r.reindex()
		r.renderer.Redraw()
	}
	return removed
}

// Clear drops all ghosts, used when the local connection is gone and no
// user-left will arrive for anyone.
func (r *Reconciler) Clear() {
	if len(r.order) == 0 {
		return
	}
	r.ghosts = make(map[string]*GhostMaterial)
	r.order = nil
	r.renderer.Redraw()
}

func (r *Reconciler) Get(key string) (GhostMaterial, bool) {
	ghost, ok := r.ghosts[key]
	if !ok {
		return GhostMaterial{}, false
	}
	return *ghost, true
}

// Ghosts returns copies in arrival order, bottom first.
func (r *Reconciler) Ghosts() []GhostMaterial {
	out := make([]GhostMaterial, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, *r.ghosts[key])
	}
	return out
}

func (r *Reconciler) Len() int {
	return len(r.ghosts)
}

func (r *Reconciler) remove(key string) bool {
	if _, ok := r.ghosts[key]; !ok {
		return false
	}
	delete(r.ghosts, key)
	for i, existing := range r.order {
		if existing == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *Reconciler) reindex() {
	for i, key := range r.order {
		r.ghosts[key].ZIndex = i
	}
}
