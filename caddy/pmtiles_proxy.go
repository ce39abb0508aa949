package caddy

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
	"github.com/tileaccess/go-pmtiles-reader/pmtiles"
	"go.uber.org/zap"
)

func init() {
	caddy.RegisterModule(Middleware{})
	httpcaddyfile.RegisterHandlerDirective("pmtiles_proxy", parseCaddyfile)
}

// Middleware creates a Z/X/Y tileserver backed by a single local archive.
type Middleware struct {
	Archive      string `json:"archive"`
	PublicURL    string `json:"public_url"`
	Cors         string `json:"cors"`
	MaxLeafDepth int    `json:"max_leaf_depth"`
	logger       *zap.Logger
	archive      *pmtiles.Archive
	handler      http.Handler
}

// CaddyModule returns the Caddy module information.
func (Middleware) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "http.handlers.pmtiles_proxy",
		New: func() caddy.Module { return new(Middleware) },
	}
}

func (m *Middleware) Provision(ctx caddy.Context) error {
	m.logger = ctx.Logger()
	if m.MaxLeafDepth <= 0 {
		m.MaxLeafDepth = 1
	}
	src, err := pmtiles.OpenSource(ctx, m.Archive)
	if err != nil {
		return err
	}
	archive, err := pmtiles.Open(ctx, src,
		pmtiles.WithLogger(m.logger),
		pmtiles.WithMaxLeafDepth(m.MaxLeafDepth))
	if err != nil {
		src.Close()
		return err
	}
	m.archive = archive
	server := pmtiles.NewServer(archive, m.logger, pmtiles.ServerOptions{
		PublicURL: m.PublicURL,
		CORS:      m.Cors,
	})
	m.handler = server.Handler()
	return nil
}

func (m *Middleware) Validate() error {
	if m.Archive == "" {
		return fmt.Errorf("no archive")
	}
	return nil
}

// Cleanup closes the archive when the config is unloaded.
func (m *Middleware) Cleanup() error {
	if m.archive != nil {
		return m.archive.Close()
	}
	return nil
}

func (m Middleware) ServeHTTP(w http.ResponseWriter, r *http.Request, _ caddyhttp.Handler) error {
	start := time.Now()
	m.handler.ServeHTTP(w, r)
	m.logger.Info("response", zap.String("path", r.URL.Path), zap.Duration("duration", time.Since(start)))
	return nil
}

func (m *Middleware) UnmarshalCaddyfile(d *caddyfile.Dispenser) error {
	for d.Next() {
		for nesting := d.Nesting(); d.NextBlock(nesting); {
			switch d.Val() {
			case "archive":
				if !d.Args(&m.Archive) {
					return d.ArgErr()
				}
			case "max_leaf_depth":
				var depth string
				if !d.Args(&depth) {
					return d.ArgErr()
				}
				num, err := strconv.Atoi(depth)
				if err != nil {
					return d.ArgErr()
				}
				m.MaxLeafDepth = num
			case "public_url":
				if !d.Args(&m.PublicURL) {
					return d.ArgErr()
				}
			case "cors":
				if !d.Args(&m.Cors) {
					return d.ArgErr()
				}
			}
		}
	}
	return nil
}

func parseCaddyfile(h httpcaddyfile.Helper) (caddyhttp.MiddlewareHandler, error) {
	var m Middleware
	err := m.UnmarshalCaddyfile(h.Dispenser)
	return m, err
}

var (
	_ caddy.Provisioner           = (*Middleware)(nil)
	_ caddy.Validator             = (*Middleware)(nil)
	_ caddy.CleanerUpper          = (*Middleware)(nil)
	_ caddyhttp.MiddlewareHandler = (*Middleware)(nil)
	_ caddyfile.Unmarshaler       = (*Middleware)(nil)
)
