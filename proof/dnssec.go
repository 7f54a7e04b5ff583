package proof

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const (
	defaultUpstream = "8.8.8.8:53"
	dnsTimeout      = 10 * time.Second
	edns0BufSize    = 4096
)

// TXTResolver looks up TXT records. Implementations return ErrNoRecords
// when the name has none.
type TXTResolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// SystemResolver resolves through the host's configured resolver.
type SystemResolver struct {
	Resolver *net.Resolver
}

// LookupTXT resolves name through the system resolver.
func (r SystemResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	res := r.Resolver
	if res == nil {
		res = net.DefaultResolver
	}
	txts, err := res.LookupTXT(ctx, name)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNoRecords, name)
		}
		return nil, fmt.Errorf("%w: TXT %s: %w", ErrLookupFailed, name, err)
	}
	if len(txts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRecords, name)
	}
	return txts, nil
}

// DNSSECResolver asks a validating recursive resolver for records and
// accepts only answers carrying the AD (Authenticated Data) flag.
type DNSSECResolver struct {
	Upstream string
	Timeout  time.Duration
	Net      string // "udp" (default) or "tcp"
}

// NewDNSSECResolver returns a resolver for upstream, defaulting to 8.8.8.8:53.
func NewDNSSECResolver(upstream string) *DNSSECResolver {
	if upstream == "" {
		upstream = defaultUpstream
	}
	return &DNSSECResolver{Upstream: upstream, Timeout: dnsTimeout}
}

func (r *DNSSECResolver) exchange(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true
	msg.SetEdns0(edns0BufSize, true)

	timeout := r.Timeout
	if timeout == 0 {
		timeout = dnsTimeout
	}
	client := &dns.Client{Net: r.Net, Timeout: timeout}
	resp, _, err := client.ExchangeContext(ctx, msg, r.Upstream)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrLookupFailed, dns.TypeToString[qtype], name, err)
	}

	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, fmt.Errorf("%w: %s (NXDOMAIN)", ErrNoRecords, name)
	default:
		return nil, fmt.Errorf("%w: %s %s: rcode %s",
			ErrLookupFailed, dns.TypeToString[qtype], name, dns.RcodeToString[resp.Rcode])
	}

	if !resp.AuthenticatedData {
		return nil, fmt.Errorf("%w: AD flag not set for %s %s",
			ErrDNSSECValidationFailed, dns.TypeToString[qtype], name)
	}
	return resp, nil
}

// LookupTXT returns each TXT record with its character-strings joined.
func (r *DNSSECResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	resp, err := r.exchange(ctx, name, dns.TypeTXT)
	if err != nil {
		return nil, err
	}
	var txts []string
	for _, rr := range resp.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			txts = append(txts, strings.Join(txt.Txt, ""))
		}
	}
	if len(txts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRecords, name)
	}
	return txts, nil
}
