// Package ipfilter restricts HTTP endpoints to a list of client networks
package ipfilter

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// Filter checks client addresses against allowed networks
type Filter struct {
	name        string
	allowedNets []*net.IPNet
	logger      *slog.Logger
}

// New builds a filter from IPs and CIDRs. Invalid entries are logged and
// skipped. An empty list allows every client. name labels the log lines.
func New(name string, allowedIPs []string, logger *slog.Logger) *Filter {
	f := &Filter{
		name:   name,
		logger: logger,
	}

	for _, entry := range allowedIPs {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn("invalid CIDR in allowed_ips", "filter", name, "cidr", entry, "error", err)
				continue
			}
			f.allowedNets = append(f.allowedNets, ipNet)
			continue
		}

		ip := net.ParseIP(entry)
		if ip == nil {
			logger.Warn("invalid IP in allowed_ips", "filter", name, "ip", entry)
			continue
		}
		bits := 128
		if ip.To4() != nil {
			ip = ip.To4()
			bits = 32
		}
		f.allowedNets = append(f.allowedNets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}

	if f.Enabled() {
		logger.Info("IP filtering enabled", "filter", name, "allowed_networks", len(f.allowedNets))
	}

	return f
}

// Enabled reports whether any network was configured
func (f *Filter) Enabled() bool {
	return len(f.allowedNets) > 0
}

// Count returns the number of allowed networks
func (f *Filter) Count() int {
	return len(f.allowedNets)
}

// IsAllowed reports whether ip may pass. Everything passes an empty filter.
func (f *Filter) IsAllowed(ip net.IP) bool {
	if !f.Enabled() {
		return true
	}
	for _, ipNet := range f.allowedNets {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then RemoteAddr
func ClientIP(r *http.Request) net.IP {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return net.ParseIP(r.RemoteAddr)
	}
	return net.ParseIP(host)
}

// Middleware rejects clients outside the allowed networks with 403
func (f *Filter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !f.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		ip := ClientIP(r)
		if ip == nil {
			f.logger.Warn("could not parse client IP", "filter", f.name, "remote_addr", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		if !f.IsAllowed(ip) {
			f.logger.Warn("access denied by IP filter", "filter", f.name, "ip", ip.String(), "path", r.URL.Path)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
