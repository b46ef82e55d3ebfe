package fleet

import (
    "strconv"

    "github.com/cespare/xxhash/v2"
)

// Ownership decides whether this process monitors a system.
type Ownership interface {
    Owns(systemID int) bool
}

// Solo owns every system. It is used when the fleet is disabled.
type Solo struct{}

func (Solo) Owns(int) bool { return true }

// Owner returns the peer ID with the highest rendezvous score for systemID,
// or "" when peers is empty. Every process computes the same owner from the
// same peer set, and losing a peer only moves the systems it owned.
func Owner(systemID int, peers []string) string {
    var (
        best  string
        score uint64
    )
    key := strconv.Itoa(systemID)
    for _, p := range peers {
        h := xxhash.Sum64String(p + "/" + key)
        if best == "" || h > score || (h == score && p < best) {
            best, score = p, h
        }
    }
    return best
}

// Rendezvous assigns systems over the live peers of a Gossip layer.
type Rendezvous struct{ G Gossip }

func (r Rendezvous) Owns(systemID int) bool {
    local := r.G.Local().ID
    if local == "" { return true }
    peers := r.G.Peers()
    ids := make([]string, 0, len(peers))
    for _, p := range peers { ids = append(ids, p.ID) }
    if len(ids) == 0 { return true }
    return Owner(systemID, ids) == local
}
