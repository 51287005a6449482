package handler

import (
	"net"
	"net/url"
	"strings"

	"github.com/sakif/questlog/internal/apperror"
)

// ReturnPolicy decides where the browser may be sent after login.
//
// Without a policy the login endpoint would be an open redirect: anyone
// could craft a link that bounces through our domain to theirs. A target
// is accepted when its origin is listed in Allowed, or when it is an http
// URL on a loopback IP literal (the CLI's one-shot callback listener).
// "localhost" is not treated as loopback; list it in Allowed for local
// frontends.
//
// Loopback targets receive the session token in the query string. Any
// process listening on a loopback port can therefore collect a token from
// a login link that names its port, and the URL lands in browser history.
// The redirect keeps the target's own query, so a listener can put a
// random state in its URL and refuse callbacks without it; the questlog
// CLI does this.
type ReturnPolicy struct {
	Default string   // used when no return_to is given
	Allowed []string // allowed origins, e.g. "https://questlog.app"
}

// Resolve validates raw and returns the target URL plus whether it points
// at a loopback listener.
func (p ReturnPolicy) Resolve(raw string) (*url.URL, bool, error) {
	if raw == "" {
		u, err := url.Parse(p.Default)
		if err != nil {
			return nil, false, apperror.ValidationFailed("return_to", "invalid default redirect")
		}
		return u, false, nil
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, false, apperror.ValidationFailed("return_to", "return_to must be an absolute URL")
	}

	if u.Scheme == "http" && isLoopback(u.Hostname()) {
		return u, true, nil
	}

	origin := strings.ToLower(u.Scheme + "://" + u.Host)
	for _, allowed := range p.Allowed {
		if strings.ToLower(strings.TrimRight(allowed, "/")) == origin {
			return u, false, nil
		}
	}
	return nil, false, apperror.ValidationFailed("return_to", "return_to is not an allowed origin")
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
