package scheduler

import "time"

// NodeStatus describes one monitored node.
type NodeStatus struct {
    ID        int    `json:"id"`
    Address   string `json:"address"`
    Connected bool   `json:"connected"`
}

// Status is a point-in-time view of a scheduler for the management endpoint.
type Status struct {
    SystemID     int            `json:"systemId"`
    Kind         string         `json:"kind,omitempty"`
    Cycle        int            `json:"cycle"`
    Tick         int            `json:"tick"`
    LastCycle    time.Time      `json:"lastCycle"`
    LastDuration time.Duration  `json:"lastDuration"`
    Probes       int            `json:"probes"`
    Nodes        []NodeStatus   `json:"nodes"`
    SystemState  string         `json:"systemState,omitempty"`
    NodeStates   map[int]string `json:"nodeStates,omitempty"`
}

// Status returns a copy of the scheduler's last published state.
func (s *Scheduler) Status() Status {
    s.mu.Lock()
    defer s.mu.Unlock()
    st := s.status
    st.Nodes = append([]NodeStatus(nil), s.status.Nodes...)
    return st
}

func (s *Scheduler) publish(at time.Time, took time.Duration) {
    nodes := make([]NodeStatus, 0, len(s.order))
    for _, id := range s.order {
        h := s.nodes[id]
        nodes = append(nodes, NodeStatus{ID: id, Address: h.Address(), Connected: h.Connected()})
    }
    st := Status{
        SystemID:     s.systemID,
        Kind:         s.system.Kind,
        Cycle:        s.cycle,
        Tick:         s.tick,
        LastCycle:    at,
        LastDuration: took,
        Probes:       len(s.rows),
        Nodes:        nodes,
    }
    if v, ok := s.opts.Registry.Verdict(s.systemID); ok {
        st.SystemState = v.SystemState
        st.NodeStates = v.NodeStates
    }
    s.mu.Lock()
    s.status = st
    s.mu.Unlock()
}
