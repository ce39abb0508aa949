package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tileaccess/go-pmtiles-reader/pmtiles"
	"go.uber.org/zap"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var cli struct {
	LogLevel  string `default:"info" enum:"debug,info,warn,error" help:"Minimum log level."`
	LogFormat string `default:"console" enum:"console,json" help:"Log output format."`

	Show struct {
		Path       string `arg:"" help:"Local path or file:// URL of the archive."`
		HeaderJSON bool   `help:"Print the header as JSON."`
		Metadata   bool   `help:"Print the metadata JSON."`
		Entries    bool   `help:"Print the root directory entries."`
	} `cmd:"" help:"Inspect a local archive."`

	Tile struct {
		Path string `arg:""`
		Z    uint8  `arg:""`
		X    uint32 `arg:""`
		Y    uint32 `arg:""`
	} `cmd:"" help:"Fetch one tile from a local archive and output on stdout."`

	Verify struct {
		Input string `arg:"" help:"Input archive." type:"existingfile"`
		Quiet bool   `help:"Suppress the progress bar."`
	} `cmd:"" help:"Verifies that a local archive is valid."`

	Serve struct {
		Path         string `arg:"" help:"Local path or file:// URL of the archive."`
		Interface    string `default:"0.0.0.0"`
		Port         int    `default:"8080"`
		Cors         string `help:"Comma-separated list of allowed CORS origins."`
		PublicURL    string `help:"Public base URL of tile endpoint, e.g. https://example.com/tiles"`
		MaxLeafDepth int    `default:"1" help:"How many leaf directories a lookup may descend through."`
	} `cmd:"" help:"Run an HTTP server for Z/X/Y tiles of one archive."`

	Version struct {
	} `cmd:"" help:"Show the program version."`
}

func newLogger(level, format string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = lvl
	return cfg.Build()
}

func main() {
	if len(os.Args) < 2 {
		os.Args = append(os.Args, "--help")
	}

	ctx := kong.Parse(&cli,
		kong.Name("pmtiles-reader"),
		kong.Description("Read-only tools for PMTiles v3 archives."))

	logger, err := newLogger(cli.LogLevel, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger, %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	switch ctx.Command() {
	case "show <path>":
		err := pmtiles.Show(logger, os.Stdout, cli.Show.Path, pmtiles.ShowOptions{
			HeaderJSON: cli.Show.HeaderJSON,
			Metadata:   cli.Show.Metadata,
			Entries:    cli.Show.Entries,
		})
		if err != nil {
			logger.Fatal("Failed to show archive", zap.Error(err))
		}
	case "tile <path> <z> <x> <y>":
		err := pmtiles.ShowTile(logger, os.Stdout, cli.Tile.Path, cli.Tile.Z, cli.Tile.X, cli.Tile.Y)
		if err != nil {
			logger.Fatal("Failed to show tile", zap.Error(err))
		}
	case "verify <input>":
		pmtiles.SetQuietMode(cli.Verify.Quiet)
		err := pmtiles.Verify(context.Background(), logger, cli.Verify.Input)
		if err != nil {
			logger.Fatal("Failed to verify archive", zap.Error(err))
		}
	case "serve <path>":
		background := context.Background()
		metrics := pmtiles.NewMetrics("reader", prometheus.DefaultRegisterer, logger)

		src, err := pmtiles.OpenSource(background, cli.Serve.Path)
		if err != nil {
			logger.Fatal("Failed to open archive", zap.String("path", cli.Serve.Path), zap.Error(err))
		}
		archive, err := pmtiles.Open(background, src,
			pmtiles.WithLogger(logger),
			pmtiles.WithMetrics(metrics),
			pmtiles.WithMaxLeafDepth(cli.Serve.MaxLeafDepth))
		if err != nil {
			logger.Fatal("Failed to read archive", zap.String("path", cli.Serve.Path), zap.Error(err))
		}
		defer archive.Close()

		server := pmtiles.NewServer(archive, logger, pmtiles.ServerOptions{
			PublicURL: cli.Serve.PublicURL,
			CORS:      cli.Serve.Cors,
			Metrics:   metrics,
			Gatherer:  prometheus.DefaultGatherer,
		})

		addr := net.JoinHostPort(cli.Serve.Interface, strconv.Itoa(cli.Serve.Port))
		logger.Info("serving",
			zap.String("path", cli.Serve.Path),
			zap.String("addr", addr),
			zap.String("cors", cli.Serve.Cors))
		logger.Fatal("server stopped", zap.Error(http.ListenAndServe(addr, server.Handler())))
	case "version":
		pmtiles.SetBuildInfo(version, commit, date)
		fmt.Printf("pmtiles-reader %s, commit %s, built at %s\n", version, commit, date)
	default:
		panic(ctx.Command())
	}
}
