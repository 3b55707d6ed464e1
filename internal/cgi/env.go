// Package cgi builds the CGI environment for an HTTP request and parses
// a module's stdout back into an HTTP response, per spec.md §4.D.
package cgi

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/deislabs/wagi-go/internal/handler"
)

// BuildEnv populates a CgiEnv map for req, matched against pattern at
// scriptName with the given wildcard tail (empty for exact routes).
func BuildEnv(req *http.Request, pattern handler.RoutePattern, tail, defaultHost string) map[string]string {
	scriptName := pattern.Prefix
	pathInfo := strings.TrimPrefix(req.URL.Path, scriptName)

	env := map[string]string{
		"REQUEST_METHOD":    req.Method,
		"SCRIPT_NAME":       scriptName,
		"PATH_INFO":         pathInfo,
		"PATH_TRANSLATED":   pathTranslated(pathInfo),
		"QUERY_STRING":      req.URL.RawQuery,
		"X_MATCHED_ROUTE":   pattern.String(),
		"X_RELATIVE_PATH":   tail,
		"X_FULL_URL":        fullURL(req),
		"SERVER_PROTOCOL":   "HTTP/1.1",
		"SERVER_SOFTWARE":   "WAGI/1",
		"GATEWAY_INTERFACE": "CGI/1.1",
		"REMOTE_ADDR":       remoteAddr(req),
		"REMOTE_HOST":       remoteAddr(req),
		"REMOTE_USER":       "",
		"AUTH_TYPE":         "",
	}

	name, port := serverNameAndPort(req, defaultHost)
	env["SERVER_NAME"] = name
	env["SERVER_PORT"] = port

	if req.ContentLength > 0 {
		env["CONTENT_LENGTH"] = strconv.FormatInt(req.ContentLength, 10)
	}
	if ctype := req.Header.Get("Content-Type"); ctype != "" {
		env["CONTENT_TYPE"] = ctype
	}

	for k, vv := range req.Header {
		cgiName := "HTTP_" + strings.ToUpper(strings.ReplaceAll(k, "-", "_"))
		env[cgiName] = strings.Join(vv, ", ")
	}

	return env
}

// Args decomposes the request's query string into command-line argument
// tokens at "&", performing no shell quoting, per spec.md §4.D.
func Args(req *http.Request) []string {
	if req.URL.RawQuery == "" {
		return nil
	}
	return strings.Split(req.URL.RawQuery, "&")
}

func pathTranslated(pathInfo string) string {
	decoded, err := url.PathUnescape(pathInfo)
	if err != nil {
		return pathInfo
	}
	return decoded
}

func fullURL(req *http.Request) string {
	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}
	u := scheme + "://" + req.Host + req.URL.Path
	if req.URL.RawQuery != "" {
		u += "?" + req.URL.RawQuery
	}
	return u
}

func remoteAddr(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

func serverNameAndPort(req *http.Request, defaultHost string) (name, port string) {
	host := req.Host
	if host == "" {
		host = defaultHost
	}
	if h, p, err := net.SplitHostPort(host); err == nil {
		return h, p
	}
	if req.TLS != nil {
		return host, "443"
	}
	return host, "80"
}
