package membership

import "github.com/amirimatin/go-clustermon/pkg/api"

// DeriveSystemState folds the node states of one system into its
// availability state.
func DeriveSystemState(states []string) string {
    joined := 0
    distinct := make(map[string]struct{}, len(states))
    for _, s := range states {
        if s == api.StateIncorrectlyJoined { return api.SystemInconsistent }
        if s == api.StateJoined { joined++ }
        distinct[s] = struct{}{}
    }
    switch {
    case joined == 0:
        return api.SystemDown
    case len(states) < 3 || joined < 3:
        return api.SystemLimitedAvailability
    case len(distinct) == 1:
        return api.SystemRunning
    default:
        return api.SystemAvailable
    }
}
