package probe

import (
    "context"
    "testing"

    "github.com/amirimatin/go-clustermon/pkg/api"
)

func TestScriptedReadsGlobals(t *testing.T) {
    env, _ := testEnv()
    tg := newTarget(1)
    tg.status = map[string]string{"threads_running": "4"}
    p := mustNew(t, api.ProbeDefinition{ID: 11, Kind: KindScript, Statement: `globals.getStatus(\"threads_running\") * 2`, Interval: 30}, tg, env)
    p.Probe(context.Background())
    if v, _ := p.Value(); v != "8" { t.Fatalf("value = %q, want 8", v) }
}

func TestScriptedSeesLogin(t *testing.T) {
    env, _ := testEnv()
    tg := newTarget(1)
    p := mustNew(t, api.ProbeDefinition{ID: 12, Kind: KindScript, Statement: `dbUserName + "@" + address`, Interval: 30}, tg, env)
    p.Probe(context.Background())
    if v, _ := p.Value(); v != "monitor@10.0.0.1" { t.Fatalf("value = %q", v) }
}

func TestScriptedErrorRecordsZero(t *testing.T) {
    env, _ := testEnv()
    tg := newTarget(1)
    p := mustNew(t, api.ProbeDefinition{ID: 13, Kind: KindScript, Statement: `nosuchthing.call()`, Interval: 30}, tg, env)
    p.Probe(context.Background())
    if v, _ := p.Value(); v != "0" { t.Fatalf("value = %q, want 0", v) }
}

func TestScriptedDelta(t *testing.T) {
    env, _ := testEnv()
    tg := newTarget(1)
    p := mustNew(t, api.ProbeDefinition{ID: 14, Kind: KindScript, Statement: `Number(globals.get("questions"))`, Interval: 30, Delta: true}, tg, env)
    tg.status = map[string]string{"questions": "100"}
    p.Probe(context.Background())
    tg.status = map[string]string{"questions": "130"}
    p.Probe(context.Background())
    if v, _ := p.Value(); v != "30" { t.Fatalf("value = %q, want 30", v) }
}
