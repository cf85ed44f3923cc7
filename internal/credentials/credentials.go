// Package credentials looks up provider tokens and signs download
// requests for the hosting providers that need them.
package credentials

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Credentials holds optional provider tokens. Zero values mean the
// provider is accessed anonymously.
type Credentials struct {
	// HuggingFace is sent as a bearer token in the Authorization header.
	HuggingFace string

	// CivitAI is sent as a "token" query parameter, per that API's
	// convention.
	CivitAI string
}

// FromEnv reads tokens from the environment: HUGGINGFACE_TOKEN (falling
// back to the token file the huggingface-cli writes) and CIVITAI_TOKEN.
func FromEnv() Credentials {
	return Credentials{
		HuggingFace: huggingFaceToken(),
		CivitAI:     os.Getenv("CIVITAI_TOKEN"),
	}
}

func huggingFaceToken() string {
	if tk := os.Getenv("HUGGINGFACE_TOKEN"); tk != "" {
		return tk
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(home, ".cache", "huggingface", "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Sign injects provider authentication into a request when its host is a
// recognized provider and the matching token is set. Unrecognized hosts
// are left untouched, so tokens never leak to arbitrary servers.
func (c Credentials) Sign(u *url.URL, header http.Header) {
	host := u.Hostname()
	switch {
	case c.HuggingFace != "" && matchesHost(host, "huggingface.co"):
		header.Set("Authorization", "Bearer "+c.HuggingFace)
	case c.CivitAI != "" && matchesHost(host, "civitai.com"):
		q := u.Query()
		q.Set("token", c.CivitAI)
		u.RawQuery = q.Encode()
	}
}

// matchesHost reports whether host is domain or a subdomain of it.
func matchesHost(host, domain string) bool {
	host = strings.ToLower(host)
	return host == domain || strings.HasSuffix(host, "."+domain)
}
