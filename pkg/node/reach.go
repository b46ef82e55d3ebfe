package node

import (
    "context"
    "errors"
    "net"
    "strconv"
    "syscall"
    "time"

    "golang.org/x/net/icmp"
    "golang.org/x/net/ipv4"
)

// Pinger checks whether a host is up, independent of any SQL session.
type Pinger interface {
    Reachable(ctx context.Context, host string, port int) bool
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context, host string, port int) bool

func (f PingerFunc) Reachable(ctx context.Context, host string, port int) bool { return f(ctx, host, port) }

const protocolICMP = 1

// ICMPPinger sends one unprivileged ICMP echo (a udp4 datagram socket, which
// needs net.ipv4.ping_group_range on Linux). When the socket cannot be opened
// it falls back to a TCP dial of the SQL port, where a refused connection
// still proves the host is up.
type ICMPPinger struct{}

func (p ICMPPinger) Reachable(ctx context.Context, host string, port int) bool {
    ok, err := echo(ctx, host)
    if err == nil { return ok }
    return tcpReachable(ctx, host, port)
}

func echo(ctx context.Context, host string) (bool, error) {
    ip, err := resolve4(ctx, host)
    if err != nil { return false, err }
    c, err := icmp.ListenPacket("udp4", "0.0.0.0")
    if err != nil { return false, err }
    defer c.Close()
    deadline, ok := ctx.Deadline()
    if !ok { deadline = time.Now().Add(4 * time.Second) }
    if err := c.SetDeadline(deadline); err != nil { return false, err }

    msg := icmp.Message{
        Type: ipv4.ICMPTypeEcho,
        Body: &icmp.Echo{ID: 1, Seq: 1, Data: []byte("clustermon")},
    }
    wb, err := msg.Marshal(nil)
    if err != nil { return false, err }
    if _, err := c.WriteTo(wb, &net.UDPAddr{IP: ip}); err != nil { return false, err }

    rb := make([]byte, 1500)
    for {
        n, peer, err := c.ReadFrom(rb)
        if err != nil {
            var ne net.Error
            if errors.As(err, &ne) && ne.Timeout() { return false, nil }
            return false, err
        }
        rm, err := icmp.ParseMessage(protocolICMP, rb[:n])
        if err != nil || rm.Type != ipv4.ICMPTypeEchoReply { continue }
        if ua, ok := peer.(*net.UDPAddr); ok && ua.IP.Equal(ip) { return true, nil }
    }
}

func resolve4(ctx context.Context, host string) (net.IP, error) {
    if ip := net.ParseIP(host); ip != nil {
        if v4 := ip.To4(); v4 != nil { return v4, nil }
        return nil, errors.New("icmp: not an IPv4 address")
    }
    addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
    if err != nil { return nil, err }
    for _, a := range addrs {
        if v4 := a.IP.To4(); v4 != nil { return v4, nil }
    }
    return nil, errors.New("icmp: no IPv4 address for " + host)
}

func tcpReachable(ctx context.Context, host string, port int) bool {
    var d net.Dialer
    conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
    if err == nil {
        _ = conn.Close()
        return true
    }
    return errors.Is(err, syscall.ECONNREFUSED)
}
