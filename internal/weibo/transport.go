package weibo

import (
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/hyperweibo/hyperweibo/internal/credentials"
)

const (
	defaultDialTimeout           = 5 * time.Second
	defaultTLSHandshakeTimeout   = 5 * time.Second
	defaultResponseHeaderTimeout = 10 * time.Second
	defaultHTTPTimeout           = 15 * time.Second
)

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   defaultHTTPTimeout,
		Transport: defaultTransport(),
	}
}

func defaultTransport() http.RoundTripper {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxConnsPerHost:       100,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
	}
}

// sessionJar is a cookie jar whose contents are replaced wholesale when credentials change.
type sessionJar struct {
	mutex sync.RWMutex
	jar   http.CookieJar
}

func newSessionJar() (*sessionJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &sessionJar{jar: jar}, nil
}

func (session *sessionJar) SetCookies(target *url.URL, cookies []*http.Cookie) {
	session.mutex.RLock()
	defer session.mutex.RUnlock()
	session.jar.SetCookies(target, cookies)
}

func (session *sessionJar) Cookies(target *url.URL) []*http.Cookie {
	session.mutex.RLock()
	defer session.mutex.RUnlock()
	return session.jar.Cookies(target)
}

func (session *sessionJar) replace(baseURL *url.URL, set credentials.Set) error {
	replacement, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	replacement.SetCookies(baseURL, scopeCookies(baseURL, set))

	session.mutex.Lock()
	defer session.mutex.Unlock()
	session.jar = replacement
	return nil
}

// scopeCookies keeps the platform's domain scope for platform hosts and falls back to host-only
// cookies when the base URL points elsewhere.
func scopeCookies(baseURL *url.URL, set credentials.Set) []*http.Cookie {
	cookies := set.HTTPCookies()
	if hostWithinDomain(baseURL.Hostname(), credentials.DefaultDomainSuffix) {
		return cookies
	}
	for _, cookie := range cookies {
		cookie.Domain = ""
	}
	return cookies
}

func hostWithinDomain(host string, domain string) bool {
	return host == domain || (len(host) > len(domain) && host[len(host)-len(domain)-1:] == "."+domain)
}
