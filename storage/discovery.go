package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/miekg/dns"
)

var errNoSRVRecords = errors.New("no SRV records found")

// etcd publishes client endpoints under these SRV names, TLS first.
var etcdSRVServices = []struct {
	prefix string
	scheme string
}{
	{prefix: "_etcd-client-ssl._tcp.", scheme: "https"},
	{prefix: "_etcd-client._tcp.", scheme: "http"},
}

// SRVResolver discovers etcd client endpoints through DNS SRV records.
type SRVResolver struct {
	// Nameserver is the host:port queried. Empty means the first server from /etc/resolv.conf.
	Nameserver string
	client     *dns.Client
	log        *slog.Logger
}

// NewSRVResolver creates a resolver querying nameserver.
func NewSRVResolver(nameserver string, log *slog.Logger) *SRVResolver {
	return &SRVResolver{
		Nameserver: nameserver,
		client:     new(dns.Client),
		log:        log,
	}
}

func (r *SRVResolver) nameserver() (string, error) {
	if r.Nameserver != "" {
		return r.Nameserver, nil
	}
	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		return "", fmt.Errorf("could not read resolver config: %w", err)
	}
	if len(conf.Servers) == 0 {
		return "", errors.New("no nameservers configured")
	}
	return net.JoinHostPort(conf.Servers[0], conf.Port), nil
}

// DiscoverEtcd returns the base URL of the preferred etcd client endpoint for domain.
// Records are ordered by priority, then by weight (highest first).
func (r *SRVResolver) DiscoverEtcd(ctx context.Context, domain string) (string, error) {
	server, err := r.nameserver()
	if err != nil {
		return "", err
	}

	for _, svc := range etcdSRVServices {
		records, err := r.lookupSRV(ctx, server, svc.prefix+dns.Fqdn(domain))
		if err != nil {
			r.log.Debug("SRV lookup failed", slog.String("service", svc.prefix), slog.String("domain", domain), "err", err)
			continue
		}
		if len(records) == 0 {
			continue
		}

		best := records[0]
		target := strings.TrimSuffix(best.Target, ".")
		endpoint := fmt.Sprintf("%s://%s", svc.scheme, net.JoinHostPort(target, strconv.Itoa(int(best.Port))))
		r.log.Info("Discovered etcd endpoint", slog.String("domain", domain), slog.String("endpoint", endpoint))
		return endpoint, nil
	}

	return "", fmt.Errorf("%w for %s", errNoSRVRecords, domain)
}

func (r *SRVResolver) lookupSRV(ctx context.Context, server, name string) ([]*dns.SRV, error) {
	m := new(dns.Msg)
	m.SetQuestion(name, dns.TypeSRV)
	m.RecursionDesired = true

	in, _, err := r.client.ExchangeContext(ctx, m, server)
	if err != nil {
		return nil, err
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("dns query for %s returned %s", name, dns.RcodeToString[in.Rcode])
	}

	records := make([]*dns.SRV, 0, len(in.Answer))
	for _, answer := range in.Answer {
		if srv, ok := answer.(*dns.SRV); ok {
			records = append(records, srv)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Priority != records[j].Priority {
			return records[i].Priority < records[j].Priority
		}
		return records[i].Weight > records[j].Weight
	})
	return records, nil
}
