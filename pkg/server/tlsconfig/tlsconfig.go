// Package tlsconfig provides the TLS configuration of the viewer server.
// Certificates are reloaded when the underlying files change.
package tlsconfig

import (
	"context"
	"crypto/tls"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"

	"github.com/mpapenbr/f1-telemetry-gateway-go/log"
)

// Settings name the certificate sources. A traefik acme file (with domain)
// takes precedence over a cert/key pair.
type Settings struct {
	CertFile      string
	KeyFile       string
	TraefikCerts  string
	TraefikDomain string
}

func (s Settings) files() []string {
	return lo.Compact([]string{s.CertFile, s.KeyFile, s.TraefikCerts})
}

type certs struct {
	ctx      context.Context
	settings Settings
	log      *log.Logger
	cert     *tls.Certificate
	mu       sync.RWMutex
}

// NewProvider returns nil if no certificate could be loaded
func NewProvider(ctx context.Context, settings Settings) *tls.Config {
	c := &certs{
		ctx:      ctx,
		settings: settings,
		log:      log.GetFromContext(ctx).Named("tls"),
	}
	c.loadCert()
	if c.current() == nil {
		return nil
	}
	go c.watchAndReloadCerts()
	return &tls.Config{
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return c.current(), nil
		},
		MinVersion: tls.VersionTLS13,
	}
}

func (c *certs) current() *tls.Certificate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cert
}

//nolint:gocognit // event loop
func (c *certs) watchAndReloadCerts() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.log.Error("could not create fsnotify watcher", log.ErrorField(err))
		return
	}
	defer watcher.Close()
	for _, f := range c.settings.files() {
		if err := watcher.Add(f); err != nil {
			c.log.Error("could not watch file", log.String("file", f), log.ErrorField(err))
		}
	}
	for {
		select {
		case <-c.ctx.Done():
			c.log.Debug("context done, stopping cert reload")
			return
		case event, ok := <-watcher.Events:
			if !ok {
				c.log.Info("watcher events channel closed, stopping cert reload")
				return
			}
			c.log.Debug("change detected",
				log.String("file", event.Name), log.Any("event", event))
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Chmod) ||
				event.Has(fsnotify.Create) {

				c.log.Info("cert file changed, reloading cert",
					log.String("file", event.Name))
				c.loadCert()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				c.log.Info("watcher errors channel closed, stopping cert reload")
				return
			}
			c.log.Error("watcher error", log.ErrorField(err))
		}
	}
}

// loadCert keeps the previous certificate if loading fails
func (c *certs) loadCert() {
	var cert tls.Certificate
	var err error
	switch {
	case c.settings.TraefikCerts != "" && c.settings.TraefikDomain != "":
		c.log.Info("Looking up traefik certs",
			log.String("file", c.settings.TraefikCerts),
			log.String("domain", c.settings.TraefikDomain))
		cert, err = CertFromTraefik(c.settings.TraefikCerts, c.settings.TraefikDomain)
	case c.settings.CertFile != "" && c.settings.KeyFile != "":
		c.log.Info("Loading cert",
			log.String("key", c.settings.KeyFile),
			log.String("cert", c.settings.CertFile))
		cert, err = tls.LoadX509KeyPair(c.settings.CertFile, c.settings.KeyFile)
	default:
		return
	}
	if err != nil {
		c.log.Error("could not load certificate", log.ErrorField(err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cert = &cert
}
