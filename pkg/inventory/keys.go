package inventory

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"

	"github.com/metalgrid/hwinv/pkg/models"
)

var macRe = regexp.MustCompile(`^(?i)[0-9a-f]{2}(?::[0-9a-f]{2}){5}$`)

// normalizeMAC validates the colon-separated six-octet form and upper-cases
// it so MAC lookups are case-insensitive.
func normalizeMAC(raw string) (string, error) {
	mac := strings.TrimSpace(raw)
	if !macRe.MatchString(mac) {
		return "", fmt.Errorf("%w: malformed mac %q", ErrInvalidRecord, raw)
	}

	return strings.ToUpper(mac), nil
}

// normalizeIP canonicalizes parseable addresses (e.g. compressed IPv6) and
// passes everything else through verbatim.
func normalizeIP(raw string) string {
	ip := strings.TrimSpace(raw)

	if addr, err := netip.ParseAddr(ip); err == nil {
		return addr.String()
	}

	return ip
}

// recordKeys extracts the deduplicated MAC and static-IP key sets across all
// interfaces of a record. Empty strings are ignored; malformed MACs reject
// the whole record.
func recordKeys(record *models.HardwareRecord) (macs, ips []string, err error) {
	seenMAC := make(map[string]struct{})
	seenIP := make(map[string]struct{})

	for _, iface := range record.Network {
		if iface == nil || iface.DHCP == nil {
			continue
		}

		if raw := strings.TrimSpace(iface.DHCP.MAC); raw != "" {
			mac, err := normalizeMAC(raw)
			if err != nil {
				return nil, nil, err
			}

			if _, ok := seenMAC[mac]; !ok {
				seenMAC[mac] = struct{}{}
				macs = append(macs, mac)
			}
		}

		if iface.DHCP.IP == nil {
			continue
		}

		if raw := strings.TrimSpace(iface.DHCP.IP.Address); raw != "" {
			ip := normalizeIP(raw)
			if _, ok := seenIP[ip]; !ok {
				seenIP[ip] = struct{}{}
				ips = append(ips, ip)
			}
		}
	}

	return macs, ips, nil
}
