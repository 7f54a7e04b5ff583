package proof

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DNSRecordPrefix is the label under which a domain publishes proofs:
// TXT _contribsplit.<domain>.
const DNSRecordPrefix = "_contribsplit."

// DNSChannel treats a handle as a domain name the owner controls.
type DNSChannel struct {
	Resolver TXTResolver
}

var _ Channel = (*DNSChannel)(nil)

// NewDNSChannel returns a channel over resolver; nil uses SystemResolver.
func NewDNSChannel(resolver TXTResolver) *DNSChannel {
	if resolver == nil {
		resolver = SystemResolver{}
	}
	return &DNSChannel{Resolver: resolver}
}

func recordName(domain string) string {
	return DNSRecordPrefix + strings.TrimSuffix(domain, ".")
}

// Publish always fails: only the domain owner can edit its zone.
func (c *DNSChannel) Publish(_ context.Context, handle, _ string) (string, error) {
	return "", fmt.Errorf("%w: add a TXT record at %s", ErrPublishUnsupported, recordName(handle))
}

// FetchPublished returns every TXT record at the proof name, one per line.
func (c *DNSChannel) FetchPublished(ctx context.Context, handle string) (string, error) {
	if handle == "" {
		return "", fmt.Errorf("%w: empty domain", ErrNotPublished)
	}
	name := recordName(handle)
	txts, err := c.Resolver.LookupTXT(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNoRecords) {
			return "", fmt.Errorf("%w: %s", ErrNotPublished, name)
		}
		return "", err
	}
	return strings.Join(txts, "\n"), nil
}

func (c *DNSChannel) Instructions(handle string) string {
	return fmt.Sprintf("Publish the challenge as a TXT record at %s", recordName(handle))
}
