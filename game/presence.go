package game

// Presence maps logged-in account ids to their live connection, the
// lookup friend invites are delivered through. Owned by the gateway
// goroutine, so no locking.
type Presence struct {
	byAccount map[string]string
}

func NewPresence() *Presence {
	return &Presence{byAccount: make(map[string]string)}
}

func (p *Presence) Register(accountID, connID string) {
	if accountID == "" {
		return
	}
	p.byAccount[accountID] = connID
}

func (p *Presence) Unregister(accountID, connID string) {
	if accountID == "" {
		return
	}
	// Only drop the mapping if it still points at this connection; a
	// reconnect may have already replaced it.
	if p.byAccount[accountID] == connID {
		delete(p.byAccount, accountID)
	}
}

func (p *Presence) Lookup(accountID string) (connID string, online bool) {
	connID, online = p.byAccount[accountID]
	return connID, online
}
