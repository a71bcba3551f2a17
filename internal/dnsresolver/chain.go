package dnsresolver

import "context"

// ChainResult is the outcome of WalkCNAMEChain.
type ChainResult struct {
	OK           bool
	Reason       string
	Chain        []string
	ResolvedIPs  []string
	LoopDetected bool
}

const (
	ReasonAuthorizedIPMatch  = "authorized_ip_match"
	ReasonDirectIPMatch      = "direct_ip_match"
	ReasonMaxDepth           = "max_chain_depth_reached"
	ReasonLoopDetected       = "cname_loop_detected"
	ReasonAuthorizedNotFound = "authorized_ip_not_found"
)

// WalkCNAMEChain performs the breadth-first walk from startHost, following
// CNAME records until an authorized IP is reached, a loop is detected, or
// maxDepth frontier expansions are exhausted. Only invoked when an
// authorized-IP set is configured; in that mode it supplants the direct
// CNAME-equality check entirely.
func (r *Resolver) WalkCNAMEChain(ctx context.Context, startHost string, authorizedIPs map[string]bool, maxDepth int) ChainResult {
	visited := map[string]bool{}
	chain := []string{}
	var resolvedIPs []string
	sawCNAME := false
	loopDetected := false

	frontier := []string{startHost}
	depth := 0

	for len(frontier) > 0 && depth < maxDepth {
		var next []string

		for _, host := range frontier {
			if visited[host] {
				loopDetected = true
				continue
			}
			visited[host] = true
			chain = append(chain, host)

			cnames, err := r.ResolveCNAME(ctx, host)
			if err == nil && len(cnames) > 0 {
				sawCNAME = true
				next = append(next, cnames...)
				continue
			}

			ips4, _ := r.ResolveA4(ctx, host)
			ips6, _ := r.ResolveA6(ctx, host)
			for _, ip := range append(ips4, ips6...) {
				resolvedIPs = append(resolvedIPs, ip)
				if authorizedIPs[ip] {
					reason := ReasonDirectIPMatch
					if sawCNAME {
						reason = ReasonAuthorizedIPMatch
					}
					return ChainResult{
						OK:           true,
						Reason:       reason,
						Chain:        chain,
						ResolvedIPs:  resolvedIPs,
						LoopDetected: loopDetected,
					}
				}
			}
		}

		frontier = next
		depth++
	}

	reason := ReasonAuthorizedNotFound
	if depth >= maxDepth && len(frontier) > 0 {
		reason = ReasonMaxDepth
	} else if loopDetected {
		reason = ReasonLoopDetected
	}

	return ChainResult{
		OK:           false,
		Reason:       reason,
		Chain:        chain,
		ResolvedIPs:  resolvedIPs,
		LoopDetected: loopDetected,
	}
}
