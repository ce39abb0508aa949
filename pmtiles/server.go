package pmtiles

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// ServerOptions configures a Server.
type ServerOptions struct {
	// PublicURL is the externally visible base URL, required for /tile.json.
	PublicURL string
	// CORS is a comma-separated list of allowed origins; empty disables CORS headers.
	CORS    string
	Metrics *Metrics
	// Gatherer, when set, is exposed on /metrics.
	Gatherer prometheus.Gatherer
}

// Server serves the tiles and metadata of a single archive over HTTP.
type Server struct {
	archive        *Archive
	logger         *zap.Logger
	metrics        *Metrics
	publicURL      string
	cors           string
	metricsHandler http.Handler
}

func NewServer(archive *Archive, logger *zap.Logger, opts ServerOptions) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &Server{
		archive:   archive,
		logger:    logger,
		metrics:   opts.Metrics,
		publicURL: strings.TrimSuffix(opts.PublicURL, "/"),
		cors:      opts.CORS,
	}
	if opts.Gatherer != nil {
		server.metricsHandler = promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})
	}
	return server
}

var tilePattern = regexp.MustCompile(`^\/(\d+)\/(\d+)\/(\d+)\.([a-z]+)$`)

func parseTilePath(path string) (bool, uint8, uint32, uint32, string) {
	if res := tilePattern.FindStringSubmatch(path); res != nil {
		z, errZ := strconv.ParseUint(res[1], 10, 8)
		x, errX := strconv.ParseUint(res[2], 10, 32)
		y, errY := strconv.ParseUint(res[3], 10, 32)
		if errZ != nil || errX != nil || errY != nil {
			return false, 0, 0, 0, ""
		}
		return true, uint8(z), uint32(x), uint32(y), res[4]
	}
	return false, 0, 0, 0, ""
}

func (server *Server) getTileJSON(httpHeaders map[string]string) (int, map[string]string, []byte) {
	if server.publicURL == "" {
		return 501, httpHeaders, []byte("PUBLIC_URL must be set for TileJSON")
	}
	tilejsonBytes, err := CreateTileJSON(server.archive.Header(), server.archive.Metadata(), server.publicURL)
	if err != nil {
		server.logger.Error("generating tilejson", zap.Error(err))
		return 500, httpHeaders, []byte("Error generating tilejson")
	}
	httpHeaders["Content-Type"] = "application/json"
	return 200, httpHeaders, tilejsonBytes
}

func (server *Server) getMetadata(httpHeaders map[string]string) (int, map[string]string, []byte) {
	httpHeaders["Content-Type"] = "application/json"
	return 200, httpHeaders, []byte(server.archive.Metadata().JSON())
}

func (server *Server) getTile(ctx context.Context, httpHeaders map[string]string, z uint8, x uint32, y uint32, ext string) (int, map[string]string, []byte) {
	header := server.archive.Header()

	if z < header.MinZoom || z > header.MaxZoom || ValidZxy(z, x, y) != nil {
		return 404, httpHeaders, []byte("Tile not found")
	}
	if want := header.TileType.String(); want != "" && ext != want {
		return 400, httpHeaders, []byte("path mismatch: archive is type " + tileTypeName(header.TileType) + " (." + want + ")")
	}

	data, ok, err := server.archive.Get(ctx, z, x, y)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 499, httpHeaders, nil
		}
		server.logger.Error("reading tile", zap.Uint8("z", z), zap.Uint32("x", x), zap.Uint32("y", y), zap.Error(err))
		return 500, httpHeaders, []byte("I/O error")
	}
	if !ok {
		return 204, httpHeaders, nil
	}

	if headerVal, ok := headerContentType(header); ok {
		httpHeaders["Content-Type"] = headerVal
	}
	if headerVal, ok := headerContentEncoding(header.TileCompression); ok {
		httpHeaders["Content-Encoding"] = headerVal
	}
	return 200, httpHeaders, data
}

func (server *Server) get(ctx context.Context, path string) (string, int, map[string]string, []byte) {
	httpHeaders := make(map[string]string)

	if ok, z, x, y, ext := parseTilePath(path); ok {
		status, headers, body := server.getTile(ctx, httpHeaders, z, x, y, ext)
		return "tile", status, headers, body
	}
	switch path {
	case "/tile.json":
		status, headers, body := server.getTileJSON(httpHeaders)
		return "tilejson", status, headers, body
	case "/metadata":
		status, headers, body := server.getMetadata(httpHeaders)
		return "metadata", status, headers, body
	case "/":
		return "/", 204, httpHeaders, []byte{}
	}
	return "404", 404, httpHeaders, []byte("Path not found")
}

// Get answers a request for path, returning the status code, headers and body.
func (server *Server) Get(ctx context.Context, path string) (int, map[string]string, []byte) {
	_, status, headers, body := server.get(ctx, path)
	return status, headers, body
}

func (server *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/metrics" && server.metricsHandler != nil {
		server.metricsHandler.ServeHTTP(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tracker := server.metrics.startRequest()
	handler, status, headers, body := server.get(r.Context(), r.URL.Path)

	if status == 200 {
		etag := generateEtag(body)
		headers["ETag"] = etag
		if r.Header.Get("If-None-Match") == etag {
			status = 304
			body = nil
		}
	}
	for k, v := range headers {
		w.Header().Set(k, v)
	}
	if status == 200 {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	}
	w.WriteHeader(status)
	if r.Method == http.MethodGet {
		w.Write(body)
	}

	tracker.finish(r.Context(), handler, status, len(body))
	server.logger.Debug("served request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Int("bytes", len(body)))
}

// Handler wraps the server with CORS handling when origins are configured.
func (server *Server) Handler() http.Handler {
	if server.cors == "" {
		return server
	}
	origins := strings.Split(server.cors, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"ETag"},
		MaxAge:         3600,
	}).Handler(server)
}
