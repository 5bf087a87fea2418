package apicall

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
	"syscall"
)

// DefaultProhibitedRanges are the networks outbound calls may never reach.
var DefaultProhibitedRanges = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"::1/128",
	"0.0.0.0/8",
	"fd00::/8",
	"169.254.169.254/32",
}

// Resolver resolves hostnames. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// SecurityPolicy decides which URLs and addresses outbound calls may target.
// It is immutable after construction and safe for concurrent use.
type SecurityPolicy struct {
	blocklist  []*regexp.Regexp
	prohibited []netip.Prefix
	resolver   Resolver
}

// PolicyOption configures a SecurityPolicy.
type PolicyOption func(*SecurityPolicy)

// WithBlocklist rejects hostnames matching any of the patterns.
func WithBlocklist(patterns ...*regexp.Regexp) PolicyOption {
	return func(p *SecurityPolicy) {
		p.blocklist = append(p.blocklist, patterns...)
	}
}

// WithProhibitedRanges replaces the prohibited networks.
func WithProhibitedRanges(prefixes ...netip.Prefix) PolicyOption {
	return func(p *SecurityPolicy) {
		p.prohibited = append([]netip.Prefix(nil), prefixes...)
	}
}

// WithResolver sets the DNS resolver used by ValidateIP.
func WithResolver(r Resolver) PolicyOption {
	return func(p *SecurityPolicy) {
		p.resolver = r
	}
}

// NewSecurityPolicy creates a policy enforcing DefaultProhibitedRanges.
func NewSecurityPolicy(opts ...PolicyOption) *SecurityPolicy {
	p := &SecurityPolicy{
		prohibited: MustParsePrefixes(DefaultProhibitedRanges...),
		resolver:   net.DefaultResolver,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CompileBlocklist compiles hostname patterns.
func CompileBlocklist(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, pat := range patterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("invalid blocklist pattern %q: %w", pat, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// MustParsePrefixes parses CIDR strings and panics on invalid input.
func MustParsePrefixes(ranges ...string) []netip.Prefix {
	out := make([]netip.Prefix, len(ranges))
	for i, r := range ranges {
		out[i] = netip.MustParsePrefix(r)
	}
	return out
}

// ValidateHostname parses rawURL and returns its hostname when the policy allows it.
func (p *SecurityPolicy) ValidateHostname(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", badRequest("url: %s could not be parsed", rawURL)
	}
	hostname := u.Hostname()
	if hostname == "" {
		return "", badRequest("url: %s could not be parsed", rawURL)
	}
	if strings.EqualFold(hostname, "localhost") {
		return "", badRequest("url hostname cannot be localhost: %s", rawURL)
	}
	for _, re := range p.blocklist {
		if re.MatchString(hostname) {
			return "", badRequest("url endpoint is blocklisted")
		}
	}
	return hostname, nil
}

// ValidateIP rejects hostnames resolving into a prohibited range. Literal IPs are
// checked directly; a DNS failure is a rejection.
func (p *SecurityPolicy) ValidateIP(ctx context.Context, hostname string) error {
	if addr, err := netip.ParseAddr(hostname); err == nil {
		return p.CheckAddr(addr)
	}
	addrs, err := p.resolver.LookupNetIP(ctx, "ip", hostname)
	if err != nil || len(addrs) == 0 {
		return &BadRequestError{Message: "cannot resolve hostname: " + hostname, Err: err}
	}
	for _, addr := range addrs {
		if err := p.CheckAddr(addr); err != nil {
			return err
		}
	}
	return nil
}

// CheckAddr rejects an address inside a prohibited range.
func (p *SecurityPolicy) CheckAddr(addr netip.Addr) error {
	addr = addr.Unmap().WithZone("")
	for _, prefix := range p.prohibited {
		if prefix.Contains(addr) {
			return badRequest("url resolves to IP: %s in prohibited range", addr)
		}
	}
	return nil
}

// Control is a net.Dialer control hook re-checking the address actually dialed.
func (p *SecurityPolicy) Control(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return badRequest("invalid dial address %s", address)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return badRequest("invalid dial address %s", address)
	}
	return p.CheckAddr(addr)
}

// Validate runs hostname and IP validation for rawURL.
func (p *SecurityPolicy) Validate(ctx context.Context, rawURL string) (string, error) {
	hostname, err := p.ValidateHostname(rawURL)
	if err != nil {
		return "", err
	}
	if err := p.ValidateIP(ctx, hostname); err != nil {
		return "", err
	}
	return hostname, nil
}
