package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

var (
	errEmptyURL  = errors.New("URLが空です")
	errNoHost    = errors.New("ホストがありません")
	webSchemes   = []string{"http", "https"}
	blockedHosts = []string{"localhost", "localhost.localdomain"}
)

// 画像URLに使わせない予約済みアドレス帯。
// IsPrivate などで拾えない 0.0.0.0/8 と CGNAT もここで弾く。
var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
}

func isReservedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() ||
		addr.IsUnspecified() || addr.IsMulticast() {
		return true
	}
	return slices.ContainsFunc(reservedPrefixes, func(p netip.Prefix) bool { return p.Contains(addr) })
}

// NewRestrictedClient はリモートAPI用の http.Client を返す。
// 接続先は名前解決後のアドレスで検査され、プライベート網や80/443以外のポートには接続しない。
func NewRestrictedClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(webSchemes...).
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(cfg).Client
}

// ValidatePictureURL は出品画像のURLを名前解決なしで検査する。
// http(s) 以外のスキーム、ホストなし、予約済みアドレスやlocalhostはエラー。
func ValidatePictureURL(rawURL string) error {
	if rawURL == "" {
		return errEmptyURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("URLの形式が不正です: %w", err)
	}
	if scheme := strings.ToLower(u.Scheme); !slices.Contains(webSchemes, scheme) {
		return fmt.Errorf("許可されていないスキームです: %q", scheme)
	}

	host := u.Hostname()
	switch {
	case host == "":
		return fmt.Errorf("%w: %s", errNoHost, rawURL)
	case slices.Contains(blockedHosts, strings.ToLower(host)):
		return fmt.Errorf("ブロック対象のホストです: %s", host)
	}
	if addr, err := netip.ParseAddr(host); err == nil && isReservedAddr(addr) {
		return fmt.Errorf("ブロック対象のIPアドレスです: %s", addr)
	}
	return nil
}

// FilterPictureURLs は ValidatePictureURL を通るURLだけを元の順で返す。
func FilterPictureURLs(urls []string) []string {
	return slices.DeleteFunc(slices.Clone(urls), func(u string) bool {
		return ValidatePictureURL(u) != nil
	})
}
