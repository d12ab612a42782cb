// Package hostnames maps captured peer IPs back to the endpoint names the
// traced program was configured with.
//
// A captured connection is just an IP:port pair; 10.0.0.5:5432 tells you
// nothing about whether it is "postgres" or something else. But the traced
// command usually carries its endpoints in plain sight: environment variables
// (DATABASE_URL, REDIS_HOST) and command-line arguments (curl
// http://example.com). Since the tracer launches the command itself, both are
// available before the first packet flows.
//
// The resolver scans those strings for hostnames, IPs, and host:port pairs,
// resolves each hostname once, and builds a reverse IP lookup. Output
// formatters consult it to render a remote address by name.
package hostnames

import (
	"net"
	"net/netip"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var (
	hostnameRe = regexp.MustCompile(`(?i)(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}`)
	ipv4Re     = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`)
	ipv6Re     = regexp.MustCompile(`(?i)(?:\[)?(?:[0-9a-f]{0,4}:){2,7}[0-9a-f]{0,4}(?:\])?`)
	hostPortRe = regexp.MustCompile(`(?i)(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}:\d{1,5}`)
)

// Resolver accumulates endpoint names and answers reverse lookups by IP.
// Ingest everything before tracing starts; Lookup and Name are read-only
// and safe to call from the event goroutines afterwards.
type Resolver struct {
	ipToHosts map[netip.Addr][]string
	seen      map[string]bool

	// lookupIP is swappable for tests. Defaults to net.LookupIP.
	lookupIP func(host string) ([]net.IP, error)
}

// NewResolver returns an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		ipToHosts: make(map[netip.Addr][]string),
		seen:      make(map[string]bool),
		lookupIP:  net.LookupIP,
	}
}

// Ingest scans each string for hostnames, IPs, and host:port pairs and adds
// the discovered endpoints to the reverse map. Hostname resolution happens
// here, once per distinct name.
func (r *Resolver) Ingest(values ...string) {
	for _, v := range values {
		r.scan(v)
	}
}

// IngestEnviron ingests the values of KEY=VALUE environment entries, like
// those returned by os.Environ.
func (r *Resolver) IngestEnviron(environ []string) {
	for _, kv := range environ {
		if _, value, ok := strings.Cut(kv, "="); ok {
			r.scan(value)
		}
	}
}

func (r *Resolver) scan(s string) {
	for _, m := range hostPortRe.FindAllString(s, -1) {
		host, portStr, ok := strings.Cut(m, ":")
		if !ok {
			continue
		}
		if port, err := strconv.Atoi(portStr); err != nil || port < 1 || port > 65535 {
			continue
		}
		r.addHostname(host)
	}

	for _, m := range hostnameRe.FindAllString(s, -1) {
		r.addHostname(m)
	}

	for _, m := range ipv4Re.FindAllString(s, -1) {
		if addr, err := netip.ParseAddr(m); err == nil {
			r.addMapping(addr, m)
		}
	}

	for _, m := range ipv6Re.FindAllString(s, -1) {
		trimmed := strings.Trim(m, "[]")
		if addr, err := netip.ParseAddr(trimmed); err == nil && addr.Is6() && !addr.Is4In6() {
			r.addMapping(addr, trimmed)
		}
	}
}

func (r *Resolver) addHostname(hostname string) {
	hostname = strings.ToLower(strings.Trim(hostname, "[]"))
	if r.seen[hostname] {
		return
	}
	r.seen[hostname] = true

	ips, err := r.lookupIP(hostname)
	if err != nil {
		return
	}

	for _, ip := range ips {
		if addr, ok := netip.AddrFromSlice(ip); ok {
			r.addMapping(addr.Unmap(), hostname)
		}
	}
}

func (r *Resolver) addMapping(addr netip.Addr, name string) {
	hosts := r.ipToHosts[addr]
	if !slices.Contains(hosts, name) {
		r.ipToHosts[addr] = append(hosts, name)
	}
}

// Lookup returns the endpoint names known for addr, or nil.
func (r *Resolver) Lookup(addr netip.Addr) []string {
	if r == nil {
		return nil
	}
	return r.ipToHosts[addr.Unmap()]
}

// Name renders ap with the first known endpoint name substituted for the IP.
// Unknown addresses render unchanged.
func (r *Resolver) Name(ap netip.AddrPort) string {
	hosts := r.Lookup(ap.Addr())
	if len(hosts) == 0 || hosts[0] == ap.Addr().Unmap().String() {
		return ap.String()
	}
	return hosts[0] + ":" + strconv.Itoa(int(ap.Port()))
}
