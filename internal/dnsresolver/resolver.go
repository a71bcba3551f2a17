// Package dnsresolver implements typed, timeout-bounded DNS lookups and the
// CNAME-chain-to-authorized-IP walk used by the validation engine. NXDOMAIN
// and NODATA are success (empty result); timeouts are a distinct error type
// so callers can tell "nothing there" from "couldn't find out."
package dnsresolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/fntelecomllc/dnsguard/internal/domain"
)

// MXRecord is one resolved mail exchanger.
type MXRecord struct {
	Exchange string
	Priority uint16
}

// TimeoutError is returned when a lookup exceeds its bound. The Label
// identifies which operation timed out, for log correlation.
type TimeoutError struct {
	Label string
	Host  string
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("dns timeout: %s %s: %v", e.Label, e.Host, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Resolver performs bounded DNS lookups against a configured set of
// upstream servers, falling back to the system resolver when none are
// configured.
type Resolver struct {
	servers []string
	client  *dns.Client
	timeout time.Duration
}

// New builds a Resolver. servers is a list of "ip:port" or bare IP upstream
// addresses (port 53 assumed when omitted); an empty list falls back to the
// OS resolver via net.DefaultResolver for each lookup.
func New(servers []string, timeout time.Duration) *Resolver {
	norm := make([]string, 0, len(servers))
	for _, s := range servers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !strings.Contains(s, ":") {
			s = net.JoinHostPort(s, "53")
		}
		norm = append(norm, s)
	}
	return &Resolver{
		servers: norm,
		client:  &dns.Client{Timeout: timeout},
		timeout: timeout,
	}
}

func (r *Resolver) lookup(ctx context.Context, label, host string, qtype uint16) (*dns.Msg, error) {
	fqdn := dns.Fqdn(host)
	msg := new(dns.Msg)
	msg.SetQuestion(fqdn, qtype)
	msg.RecursionDesired = true

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if len(r.servers) == 0 {
		return r.lookupSystem(ctx, label, host, qtype)
	}

	var lastErr error
	for _, server := range r.servers {
		resp, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, &TimeoutError{Label: label, Host: host, Err: err}
			}
			lastErr = err
			continue
		}
		if resp.Rcode != dns.RcodeSuccess && resp.Rcode != dns.RcodeNameError {
			lastErr = fmt.Errorf("dns %s %s: rcode %s", label, host, dns.RcodeToString[resp.Rcode])
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

// lookupSystem is used when no upstream servers are configured; it defers
// to the OS stub resolver, which cannot distinguish record types as
// granularly as a raw query, so it's used only for the record kinds
// net.Resolver exposes directly (CNAME, MX, TXT, A/AAAA via LookupIP/Host).
func (r *Resolver) lookupSystem(ctx context.Context, label, host string, qtype uint16) (*dns.Msg, error) {
	res := net.DefaultResolver
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), qtype)

	switch qtype {
	case dns.TypeCNAME:
		cname, err := res.LookupCNAME(ctx, host)
		if err != nil {
			return handleSystemErr(label, host, err)
		}
		if strings.EqualFold(dns.Fqdn(cname), dns.Fqdn(host)) {
			return msg, nil
		}
		rr := &dns.CNAME{Hdr: dns.RR_Header{Name: dns.Fqdn(host), Rrtype: dns.TypeCNAME}, Target: dns.Fqdn(cname)}
		msg.Answer = append(msg.Answer, rr)
		return msg, nil
	case dns.TypeMX:
		records, err := res.LookupMX(ctx, host)
		if err != nil {
			return handleSystemErr(label, host, err)
		}
		for _, rec := range records {
			msg.Answer = append(msg.Answer, &dns.MX{
				Hdr:        dns.RR_Header{Name: dns.Fqdn(host), Rrtype: dns.TypeMX},
				Mx:         rec.Host,
				Preference: rec.Pref,
			})
		}
		return msg, nil
	case dns.TypeTXT:
		records, err := res.LookupTXT(ctx, host)
		if err != nil {
			return handleSystemErr(label, host, err)
		}
		for _, rec := range records {
			msg.Answer = append(msg.Answer, &dns.TXT{
				Hdr: dns.RR_Header{Name: dns.Fqdn(host), Rrtype: dns.TypeTXT},
				Txt: []string{rec},
			})
		}
		return msg, nil
	case dns.TypeA, dns.TypeAAAA:
		ips, err := res.LookupIP(ctx, ipNetwork(qtype), host)
		if err != nil {
			return handleSystemErr(label, host, err)
		}
		for _, ip := range ips {
			if qtype == dns.TypeA {
				msg.Answer = append(msg.Answer, &dns.A{Hdr: dns.RR_Header{Name: dns.Fqdn(host), Rrtype: dns.TypeA}, A: ip})
			} else {
				msg.Answer = append(msg.Answer, &dns.AAAA{Hdr: dns.RR_Header{Name: dns.Fqdn(host), Rrtype: dns.TypeAAAA}, AAAA: ip})
			}
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("unsupported qtype %d", qtype)
	}
}

func ipNetwork(qtype uint16) string {
	if qtype == dns.TypeA {
		return "ip4"
	}
	return "ip6"
}

func handleSystemErr(label, host string, err error) (*dns.Msg, error) {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return nil, &TimeoutError{Label: label, Host: host, Err: err}
		}
		if dnsErr.IsNotFound {
			return new(dns.Msg), nil
		}
	}
	return nil, err
}

// isNotFound reports whether rcode indicates NXDOMAIN/NODATA, which this
// facade treats as success (an empty result), not an error.
func isNotFound(msg *dns.Msg) bool {
	return msg == nil || msg.Rcode == dns.RcodeNameError || len(msg.Answer) == 0
}

// ResolveCNAME returns the CNAME targets for host, lowercased with the
// trailing dot stripped. NXDOMAIN/NODATA yields an empty slice, not an
// error.
func (r *Resolver) ResolveCNAME(ctx context.Context, host string) ([]string, error) {
	msg, err := r.lookup(ctx, "cname", host, dns.TypeCNAME)
	if err != nil {
		return nil, translateErr(err)
	}
	if isNotFound(msg) {
		return nil, nil
	}
	var out []string
	for _, rr := range msg.Answer {
		if c, ok := rr.(*dns.CNAME); ok {
			out = append(out, domain.NormalizeHost(c.Target))
		}
	}
	return out, nil
}

// ResolveMX returns the MX records for host.
func (r *Resolver) ResolveMX(ctx context.Context, host string) ([]MXRecord, error) {
	msg, err := r.lookup(ctx, "mx", host, dns.TypeMX)
	if err != nil {
		return nil, translateErr(err)
	}
	if isNotFound(msg) {
		return nil, nil
	}
	var out []MXRecord
	for _, rr := range msg.Answer {
		if m, ok := rr.(*dns.MX); ok {
			out = append(out, MXRecord{Exchange: domain.NormalizeHost(m.Mx), Priority: m.Preference})
		}
	}
	return out, nil
}

// ResolveTXT returns TXT records for host, with each record's rdata chunks
// concatenated without a separator (matching how resolvers join quoted
// TXT segments into one logical string).
func (r *Resolver) ResolveTXT(ctx context.Context, host string) ([]string, error) {
	msg, err := r.lookup(ctx, "txt", host, dns.TypeTXT)
	if err != nil {
		return nil, translateErr(err)
	}
	if isNotFound(msg) {
		return nil, nil
	}
	var out []string
	for _, rr := range msg.Answer {
		if t, ok := rr.(*dns.TXT); ok {
			out = append(out, strings.Join(t.Txt, ""))
		}
	}
	return out, nil
}

// ResolveA4 returns A records for host.
func (r *Resolver) ResolveA4(ctx context.Context, host string) ([]string, error) {
	msg, err := r.lookup(ctx, "a", host, dns.TypeA)
	if err != nil {
		return nil, translateErr(err)
	}
	if isNotFound(msg) {
		return nil, nil
	}
	var out []string
	for _, rr := range msg.Answer {
		if a, ok := rr.(*dns.A); ok {
			out = append(out, strings.ToLower(strings.TrimSpace(a.A.String())))
		}
	}
	return out, nil
}

// ResolveA6 returns AAAA records for host.
func (r *Resolver) ResolveA6(ctx context.Context, host string) ([]string, error) {
	msg, err := r.lookup(ctx, "aaaa", host, dns.TypeAAAA)
	if err != nil {
		return nil, translateErr(err)
	}
	if isNotFound(msg) {
		return nil, nil
	}
	var out []string
	for _, rr := range msg.Answer {
		if a, ok := rr.(*dns.AAAA); ok {
			out = append(out, strings.ToLower(strings.TrimSpace(a.AAAA.String())))
		}
	}
	return out, nil
}

func translateErr(err error) error {
	var te *TimeoutError
	if errors.As(err, &te) {
		return te
	}
	return err
}
