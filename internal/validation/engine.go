package validation

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/fntelecomllc/dnsguard/internal/dnsresolver"
	"github.com/fntelecomllc/dnsguard/internal/domain"
	"github.com/fntelecomllc/dnsguard/internal/models"
	"github.com/fntelecomllc/dnsguard/internal/sanitize"
)

// Resolver is the subset of dnsresolver.Resolver the engine depends on,
// narrowed so tests can substitute a fake.
type Resolver interface {
	ResolveCNAME(ctx context.Context, host string) ([]string, error)
	ResolveMX(ctx context.Context, host string) ([]dnsresolver.MXRecord, error)
	ResolveTXT(ctx context.Context, host string) ([]string, error)
	ResolveA4(ctx context.Context, host string) ([]string, error)
	ResolveA6(ctx context.Context, host string) ([]string, error)
	WalkCNAMEChain(ctx context.Context, startHost string, authorizedIPs map[string]bool, maxDepth int) dnsresolver.ChainResult
}

// Engine runs the full five-requirement comparison for a target.
type Engine struct {
	resolver Resolver
	profile  Profile
}

func New(resolver Resolver, profile Profile) *Engine {
	return &Engine{resolver: resolver, profile: profile}
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func collapseAndFold(s string) string {
	s = whitespaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
	return strings.ToLower(s)
}

// Check resolves every record for target and compares against the profile,
// returning the unified result with ok, per-key missing entries, and a
// sanitized snapshot.
func (e *Engine) Check(ctx context.Context, target string) (*models.CheckResult, error) {
	apex, err := domain.Normalize(target)
	if err != nil {
		return nil, err
	}
	dmarcName := "_dmarc." + apex
	dkimName := e.profile.DKIMSelector + "._domainkey." + apex

	cnameApex, errCNAME := e.resolver.ResolveCNAME(ctx, apex)
	cnameDKIM, errDKIM := e.resolver.ResolveCNAME(ctx, dkimName)
	mxRecords, errMX := e.resolver.ResolveMX(ctx, apex)
	txtApex, errTXT := e.resolver.ResolveTXT(ctx, apex)
	txtDMARC, errDMARCTXT := e.resolver.ResolveTXT(ctx, dmarcName)

	if firstTimeout := firstTimeoutErr(errCNAME, errDKIM, errMX, errTXT, errDMARCTXT); firstTimeout != nil {
		return nil, firstTimeout
	}

	result := &models.CheckResult{Snapshot: models.Snapshot{}}

	cnameEntry, cnameOK := e.checkCNAME(ctx, apex, cnameApex)
	mxEntry, mxOK := e.checkMX(mxRecords)
	spfEntry, spfOK := e.checkSPF(apex, txtApex)
	dmarcEntry, dmarcOK := e.checkDMARC(dmarcName, txtDMARC)
	dkimEntry, dkimOK := e.checkDKIM(dkimName, cnameDKIM)

	result.Missing = []models.MissingEntry{cnameEntry, mxEntry, spfEntry, dmarcEntry, dkimEntry}
	result.OK = cnameOK && mxOK && spfOK && dmarcOK && dkimOK

	result.Snapshot[models.KeyCNAME] = capHosts(cnameApex, e.profile.hostCap())
	result.Snapshot[models.KeyMX] = capMXSnapshot(mxRecords, e.profile.hostCap())
	result.Snapshot[models.KeySPF] = capTXT(txtApex, e.profile.txtCap(), e.profile.txtLenCap())
	result.Snapshot[models.KeyDMARC] = capTXT(txtDMARC, e.profile.txtCap(), e.profile.txtLenCap())
	result.Snapshot[models.KeyDKIM] = capHosts(cnameDKIM, e.profile.hostCap())

	return result, nil
}

func firstTimeoutErr(errs ...error) error {
	for _, err := range errs {
		if err == nil {
			continue
		}
		var te *dnsresolver.TimeoutError
		if asTimeout(err, &te) {
			return te
		}
	}
	return nil
}

func asTimeout(err error, target **dnsresolver.TimeoutError) bool {
	if te, ok := err.(*dnsresolver.TimeoutError); ok {
		*target = te
		return true
	}
	return false
}

func (p Profile) hostCap() int {
	if p.DNSMaxRecords > 0 {
		return p.DNSMaxRecords
	}
	return 10
}

func (p Profile) txtCap() int {
	if p.DNSMaxTXTRecords > 0 {
		return p.DNSMaxTXTRecords
	}
	return 10
}

func (p Profile) hostLenCap() int {
	if p.DNSMaxHostLength > 0 {
		return p.DNSMaxHostLength
	}
	return 255
}

func (p Profile) txtLenCap() int {
	if p.DNSMaxTXTLength > 0 {
		return p.DNSMaxTXTLength
	}
	return 512
}

func (e *Engine) checkCNAME(ctx context.Context, apex string, found []string) (models.MissingEntry, bool) {
	entry := models.MissingEntry{
		Key:      models.KeyCNAME,
		Type:     "CNAME",
		Name:     apex,
		Expected: e.profile.CNAMEExpected,
		Found:    sanitizeHosts(found, e.profile.hostCap(), e.profile.hostLenCap()),
	}

	if len(e.profile.CNAMEAuthorizedIPs) > 0 {
		chain := e.resolver.WalkCNAMEChain(ctx, apex, e.profile.AuthorizedIPSet(), e.profile.CNAMEMaxChainDepth)
		entry.ExpectedIPs = e.profile.CNAMEAuthorizedIPs
		entry.FoundIPs = chain.ResolvedIPs
		entry.ChainReason = chain.Reason
		entry.OK = chain.OK
		return entry, chain.OK
	}

	expected := domain.NormalizeHost(e.profile.CNAMEExpected)
	ok := false
	for _, f := range found {
		if domain.NormalizeHost(f) == expected {
			ok = true
			break
		}
	}
	entry.OK = ok
	return entry, ok
}

func (e *Engine) checkMX(records []dnsresolver.MXRecord) (models.MissingEntry, bool) {
	expectedHost := domain.NormalizeHost(e.profile.MXExpectedHost)
	found := make([]string, 0, len(records))
	ok := false
	for _, r := range records {
		found = append(found, r.Exchange+" "+strconv.Itoa(int(r.Priority)))
		if r.Exchange == expectedHost && int(r.Priority) == e.profile.MXExpectedPriority {
			ok = true
		}
	}
	entry := models.MissingEntry{
		Key:      models.KeyMX,
		Type:     "MX",
		Name:     "",
		Expected: expectedHost + " " + strconv.Itoa(e.profile.MXExpectedPriority),
		Found:    sanitizeHosts(found, e.profile.hostCap(), e.profile.hostLenCap()),
		OK:       ok,
	}
	return entry, ok
}

func (e *Engine) checkSPF(apex string, txt []string) (models.MissingEntry, bool) {
	expected := collapseAndFold(e.profile.SPFExpected)
	ok := false
	for _, t := range txt {
		if collapseAndFold(t) == expected {
			ok = true
			break
		}
	}
	entry := models.MissingEntry{
		Key:      models.KeySPF,
		Type:     "TXT",
		Name:     apex,
		Expected: e.profile.SPFExpected,
		Found:    sanitizeTXT(txt, e.profile.txtCap(), e.profile.txtLenCap()),
		OK:       ok,
	}
	return entry, ok
}

func (e *Engine) checkDMARC(dmarcName string, txt []string) (models.MissingEntry, bool) {
	expected := collapseAndFold(e.profile.DMARCExpected)
	ok := false
	for _, t := range txt {
		if collapseAndFold(t) == expected {
			ok = true
			break
		}
	}
	entry := models.MissingEntry{
		Key:      models.KeyDMARC,
		Type:     "TXT",
		Name:     dmarcName,
		Expected: e.profile.DMARCExpected,
		Found:    sanitizeTXT(txt, e.profile.txtCap(), e.profile.txtLenCap()),
		OK:       ok,
	}
	return entry, ok
}

func (e *Engine) checkDKIM(dkimName string, found []string) (models.MissingEntry, bool) {
	expected := domain.NormalizeHost(e.profile.DKIMCNAMEExpected)
	ok := false
	for _, f := range found {
		if domain.NormalizeHost(f) == expected {
			ok = true
			break
		}
	}
	entry := models.MissingEntry{
		Key:      models.KeyDKIM,
		Type:     "CNAME",
		Name:     dkimName,
		Expected: e.profile.DKIMCNAMEExpected,
		Found:    sanitizeHosts(found, e.profile.hostCap(), e.profile.hostLenCap()),
		OK:       ok,
	}
	return entry, ok
}

func sanitizeHosts(values []string, maxRecords, maxLen int) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, sanitize.Host(v, maxLen))
	}
	if len(out) > maxRecords {
		out = out[:maxRecords]
	}
	return out
}

func sanitizeTXT(values []string, maxRecords, maxLen int) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, sanitize.String(v, maxLen))
	}
	if len(out) > maxRecords {
		out = out[:maxRecords]
	}
	return out
}

func capHosts(values []string, max int) models.SnapshotEntry {
	cl := sanitize.CapArrayRaw(values, max)
	return models.SnapshotEntry{Values: cl.Values, Total: cl.Total, Truncated: cl.Truncated, Hash: cl.Hash}
}

func capTXT(values []string, maxRecords, maxLen int) models.SnapshotEntry {
	sanitized := make([]string, len(values))
	truncatedAny := false
	for i, v := range values {
		s := sanitize.String(v, maxLen)
		if s != v {
			truncatedAny = true
		}
		sanitized[i] = s
	}
	cl := sanitize.CapArrayRaw(sanitized, maxRecords)
	if truncatedAny && !cl.Truncated {
		cl.Truncated = true
		cl.Hash = sanitize.HashJoined(values)
	}
	return models.SnapshotEntry{Values: cl.Values, Total: cl.Total, Truncated: cl.Truncated, Hash: cl.Hash}
}

func capMXSnapshot(records []dnsresolver.MXRecord, max int) models.SnapshotEntry {
	values := make([]string, 0, len(records))
	for _, r := range records {
		values = append(values, r.Exchange+" "+strconv.Itoa(int(r.Priority)))
	}
	return capHosts(values, max)
}
