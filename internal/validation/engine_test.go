package validation

import (
	"context"
	"testing"

	"github.com/fntelecomllc/dnsguard/internal/dnsresolver"
)

type fakeResolver struct {
	cname map[string][]string
	mx    map[string][]dnsresolver.MXRecord
	txt   map[string][]string
	a4    map[string][]string
	a6    map[string][]string
	chain dnsresolver.ChainResult
}

func (f *fakeResolver) ResolveCNAME(ctx context.Context, host string) ([]string, error) {
	return f.cname[host], nil
}
func (f *fakeResolver) ResolveMX(ctx context.Context, host string) ([]dnsresolver.MXRecord, error) {
	return f.mx[host], nil
}
func (f *fakeResolver) ResolveTXT(ctx context.Context, host string) ([]string, error) {
	return f.txt[host], nil
}
func (f *fakeResolver) ResolveA4(ctx context.Context, host string) ([]string, error) {
	return f.a4[host], nil
}
func (f *fakeResolver) ResolveA6(ctx context.Context, host string) ([]string, error) {
	return f.a6[host], nil
}
func (f *fakeResolver) WalkCNAMEChain(ctx context.Context, startHost string, authorizedIPs map[string]bool, maxDepth int) dnsresolver.ChainResult {
	return f.chain
}

func baseProfile() Profile {
	return Profile{
		CNAMEExpected:      "mail.forwarder.example",
		MXExpectedHost:     "mx.forwarder.example",
		MXExpectedPriority: 10,
		SPFExpected:        "v=spf1 mx -all",
		DMARCExpected:      "v=DMARC1; p=reject",
		DKIMSelector:       "fwd",
		DKIMCNAMEExpected:  "dkim.forwarder.example",
		DNSMaxRecords:      10,
		DNSMaxTXTRecords:   10,
		DNSMaxHostLength:   255,
		DNSMaxTXTLength:    512,
	}
}

func TestEngine_AllPass(t *testing.T) {
	resolver := &fakeResolver{
		cname: map[string][]string{
			"good.example":          {"mail.forwarder.example"},
			"fwd._domainkey.good.example": {"dkim.forwarder.example"},
		},
		mx: map[string][]dnsresolver.MXRecord{
			"good.example": {{Exchange: "mx.forwarder.example", Priority: 10}},
		},
		txt: map[string][]string{
			"good.example":        {"v=spf1  MX  -all"},
			"_dmarc.good.example": {"v=dmarc1; p=reject"},
		},
	}
	e := New(resolver, baseProfile())
	result, err := e.Check(context.Background(), "good.example")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK {
		t.Fatalf("expected ok=true, got missing=%+v", result.Missing)
	}
}

func TestEngine_MXPriorityMismatch(t *testing.T) {
	resolver := &fakeResolver{
		mx: map[string][]dnsresolver.MXRecord{
			"bad.example": {{Exchange: "mx.forwarder.example", Priority: 20}},
		},
	}
	e := New(resolver, baseProfile())
	result, err := e.Check(context.Background(), "bad.example")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OK {
		t.Fatalf("expected ok=false due to priority mismatch")
	}
	if mxEntry := result.Missing[1]; mxEntry.OK {
		t.Fatalf("expected mx entry ok=false for priority 20 vs expected 10, got %+v", mxEntry)
	}
}

func TestEngine_AuthorizedIPMode(t *testing.T) {
	profile := baseProfile()
	profile.CNAMEAuthorizedIPs = []string{"1.2.3.4"}
	profile.CNAMEMaxChainDepth = 10
	resolver := &fakeResolver{
		chain: dnsresolver.ChainResult{OK: true, Reason: dnsresolver.ReasonAuthorizedIPMatch, ResolvedIPs: []string{"1.2.3.4"}},
	}
	e := New(resolver, profile)
	result, err := e.Check(context.Background(), "authip.example")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var cnameEntry = result.Missing[0]
	if !cnameEntry.OK || cnameEntry.ChainReason != dnsresolver.ReasonAuthorizedIPMatch {
		t.Fatalf("expected authorized ip match, got %+v", cnameEntry)
	}
}
