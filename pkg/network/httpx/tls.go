package httpx

import (
	"crypto/tls"

	"golang.org/x/crypto/acme/autocert"
)

const certCache = "assets/cache"

// autoCert makes a Let's Encrypt manager limited to the domain, if any.
func autoCert(domain string) *autocert.Manager {
	m := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		Cache:  autocert.DirCache(certCache),
	}
	if domain != "" {
		m.HostPolicy = autocert.HostWhitelist(domain)
	}
	return m
}

func (s *Server) tlsConfig() *tls.Config {
	if s.autoCert == nil {
		return nil
	}
	return s.autoCert.TLSConfig()
}
