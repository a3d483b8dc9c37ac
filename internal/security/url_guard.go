package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// URLGuardService は外部URLへのアクセスと外部から受け取ったURLを検証する。
// Open Food Facts への問い合わせと、応答に含まれる画像URLの検証に使用される。
type URLGuardService interface {
	// NewSafeClient はプライベートIPやメタデータIPへの接続を拒否するHTTPクライアントを生成する。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateURL はURLのスキームとホストを静的に検証し、危険な場合はエラーを返す。
	ValidateURL(rawURL string) error
}

// blockedNetworks はブロック対象のネットワーク範囲。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16", // クラウドメタデータIPを含む
	"0.0.0.0/8",
	"100.64.0.0/10",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

var blockedHostnames = map[string]struct{}{
	"localhost":                {},
	"metadata.google.internal": {},
}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		networks = append(networks, network)
	}
	return networks
}

// urlGuard はURLGuardServiceの実装。
type urlGuard struct {
	schemes []string
}

// NewURLGuard はURLGuardServiceの新しいインスタンスを生成する。
// schemesを省略した場合はhttpsのみ許可する。
func NewURLGuard(schemes ...string) *urlGuard {
	if len(schemes) == 0 {
		schemes = []string{"https"}
	}
	normalized := make([]string, 0, len(schemes))
	for _, s := range schemes {
		normalized = append(normalized, strings.ToLower(s))
	}
	return &urlGuard{schemes: normalized}
}

// NewSafeClient はsafeurlでラップしたHTTPクライアントを生成する。
// 接続先IPはDNS解決後にDialerで検証されるため、DNS再バインディングも防げる。
func (g *urlGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(g.schemes...).
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL はDNS解決を伴わない静的な検証を行う。
func (g *urlGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !g.allowsScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %q (allowed: %v)", scheme, g.schemes)
	}
	if parsed.User != nil {
		return fmt.Errorf("credentials in URL are not allowed")
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, network := range blockedNetworks {
			if network.Contains(ip) {
				return fmt.Errorf("blocked IP address: %s", ip.String())
			}
		}
		return nil
	}

	if _, blocked := blockedHostnames[strings.ToLower(strings.TrimSuffix(host, "."))]; blocked {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

func (g *urlGuard) allowsScheme(scheme string) bool {
	for _, allowed := range g.schemes {
		if scheme == allowed {
			return true
		}
	}
	return false
}
