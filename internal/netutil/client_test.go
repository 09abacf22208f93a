package netutil

import (
	"net"
	"testing"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name         string
		url          string
		allowPrivate bool
		wantErr      bool
	}{
		{name: "https allowed", url: "https://packs.example.com/packs/foo/1.0.0", allowPrivate: false, wantErr: false},
		{name: "http not allowed", url: "http://packs.example.com/foo", allowPrivate: false, wantErr: true},
		{name: "file not allowed", url: "file:///etc/passwd", allowPrivate: false, wantErr: true},
		{name: "localhost blocked", url: "https://localhost/foo", allowPrivate: false, wantErr: true},
		{name: "127.0.0.1 blocked", url: "https://127.0.0.1/foo", allowPrivate: false, wantErr: true},
		{name: "10.x.x.x blocked", url: "https://10.0.0.1/foo", allowPrivate: false, wantErr: true},
		{name: "10.x allowed with flag", url: "https://10.0.0.1/foo", allowPrivate: true, wantErr: false},
		{name: "http still blocked with flag", url: "http://10.0.0.1/foo", allowPrivate: true, wantErr: true},
		{name: "empty URL", url: "", allowPrivate: false, wantErr: true},
		{name: "invalid URL", url: "not-a-url", allowPrivate: false, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url, tt.allowPrivate)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q, %v) error = %v, wantErr %v", tt.url, tt.allowPrivate, err, tt.wantErr)
			}
		})
	}
}

func TestIsPrivateOrReservedIP(t *testing.T) {
	tests := []struct {
		name      string
		ip        string
		isPrivate bool
	}{
		{name: "google dns", ip: "8.8.8.8", isPrivate: false},
		{name: "cloudflare dns", ip: "1.1.1.1", isPrivate: false},
		{name: "loopback", ip: "127.0.0.1", isPrivate: true},
		{name: "ipv6 loopback", ip: "::1", isPrivate: true},
		{name: "10.x.x.x", ip: "10.0.0.1", isPrivate: true},
		{name: "172.16.x.x", ip: "172.16.0.1", isPrivate: true},
		{name: "192.168.x.x", ip: "192.168.1.1", isPrivate: true},
		{name: "link-local", ip: "169.254.1.1", isPrivate: true},
		{name: "cgnat start", ip: "100.64.0.1", isPrivate: true},
		{name: "cgnat end", ip: "100.127.255.255", isPrivate: true},
		{name: "not cgnat", ip: "100.63.255.255", isPrivate: false},
		{name: "benchmark", ip: "198.18.0.1", isPrivate: true},
		{name: "test-net-1", ip: "192.0.2.1", isPrivate: true},
		{name: "test-net-2", ip: "198.51.100.1", isPrivate: true},
		{name: "test-net-3", ip: "203.0.113.1", isPrivate: true},
		{name: "unspecified v4", ip: "0.0.0.0", isPrivate: true},
		{name: "this network", ip: "0.1.2.3", isPrivate: true},
		{name: "reserved future", ip: "240.0.0.1", isPrivate: true},
		{name: "broadcast", ip: "255.255.255.255", isPrivate: true},
		{name: "multicast v4", ip: "224.0.0.1", isPrivate: true},
		{name: "ipv6 public", ip: "2001:4860:4860::8888", isPrivate: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ip := net.ParseIP(tt.ip)
			if ip == nil {
				t.Fatalf("failed to parse IP: %s", tt.ip)
			}
			if got := IsPrivateOrReservedIP(ip); got != tt.isPrivate {
				t.Errorf("IsPrivateOrReservedIP(%s) = %v, want %v", tt.ip, got, tt.isPrivate)
			}
		})
	}
}

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()
	if cfg.AllowPrivateHosts {
		t.Error("default should block private hosts")
	}
	if cfg.MaxRedirects != 5 {
		t.Errorf("default max redirects = %d, want 5", cfg.MaxRedirects)
	}
}
