package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airbusgeo/stac-fetcher/aoi"
	"github.com/airbusgeo/stac-fetcher/dispatcher"
	"github.com/airbusgeo/stac-fetcher/fetcher"
	"github.com/airbusgeo/stac-fetcher/interface/catalog/stac"
	"github.com/airbusgeo/stac-fetcher/interface/geocoder"
	"github.com/airbusgeo/stac-fetcher/interface/geocoder/cache"
	"github.com/airbusgeo/stac-fetcher/interface/geocoder/nominatim"
	"github.com/airbusgeo/stac-fetcher/interface/raster/cog"
	"github.com/airbusgeo/stac-fetcher/interface/table/geoparquet"
	"github.com/airbusgeo/stac-fetcher/interface/zarr"
	"github.com/airbusgeo/stac-fetcher/packager"
	"github.com/airbusgeo/stac-fetcher/planner"
	"github.com/airbusgeo/stac-fetcher/registry"
	"github.com/airbusgeo/stac-fetcher/service"
	"github.com/airbusgeo/stac-fetcher/service/config"
	"github.com/airbusgeo/stac-fetcher/service/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type appConfig struct {
	Query         string
	Collection    string
	AOI           string
	TimeRange     string
	Output        string
	MaxCloudCover int
	Variables     string
	Limit         int

	Workdir          string
	StacURL          string
	SasURL           string
	SubscriptionKey  string
	GeocoderURL      string
	GeocoderCache    string
	GeocoderCacheTTL time.Duration
	CachedTiles      int
	Policy           string
	S3AccessKey      string
	S3SecretKey      string
	S3Region         string
	Listen           string
	LogLevel         string
}

func newAppConfig() (*appConfig, error) {
	conf := appConfig{}
	flag.StringVar(&conf.Query, "query", "", "natural language query or collection id (download_data)")
	flag.StringVar(&conf.Collection, "collection", "", "vector collection id (download_geometries)")
	flag.StringVar(&conf.AOI, "aoi", "", "area of interest: json bbox [west, south, east, north], geojson geometry or place name")
	flag.StringVar(&conf.TimeRange, "time-range", "", "time range 'YYYY-MM-DD/YYYY-MM-DD' (optional, default: last days)")
	flag.StringVar(&conf.Output, "output", ".", "output directory (local path, gs://bucket/prefix or s3://bucket/prefix)")
	flag.IntVar(&conf.MaxCloudCover, "max-cloud-cover", fetcher.DefaultMaxCloudCover, "maximum cloud cover (%) of optical scenes")
	flag.StringVar(&conf.Variables, "variables", "", "json list of the variables of a multidimensional collection (optional)")
	flag.IntVar(&conf.Limit, "limit", 0, "maximum number of features (download_geometries, 0: no limit)")

	flag.StringVar(&conf.Workdir, "workdir", "", "working directory to store temporary files (default: system temporary directory)")
	flag.StringVar(&conf.StacURL, "stac-url", stac.PlanetaryComputerURL, "url of the STAC API")
	flag.StringVar(&conf.SasURL, "sas-url", stac.PlanetaryComputerSASURL, "url of the SAS token endpoint")
	flag.StringVar(&conf.SubscriptionKey, "subscription-key", os.Getenv("PC_SDK_SUBSCRIPTION_KEY"), "Planetary Computer subscription key (optional)")
	flag.StringVar(&conf.GeocoderURL, "geocoder-url", nominatim.DefaultURL, "url of the nominatim geocoder")
	flag.StringVar(&conf.GeocoderCache, "geocoder-cache", "", "geocoding cache: json file path or redis://host:port/db (optional)")
	flag.DurationVar(&conf.GeocoderCacheTTL, "geocoder-cache-ttl", cache.DefaultTTL, "time to live of the geocoding cache entries")
	flag.IntVar(&conf.CachedTiles, "cached-tiles", 0, "number of decoded COG tiles kept in memory (0: default)")
	flag.StringVar(&conf.Policy, "policy", "", "configuration file of the planner and the dispatcher (yaml, json or toml, optional)")
	flag.StringVar(&conf.S3AccessKey, "s3-access-key", os.Getenv("AWS_ACCESS_KEY_ID"), "access key of s3:// outputs")
	flag.StringVar(&conf.S3SecretKey, "s3-secret-key", os.Getenv("AWS_SECRET_ACCESS_KEY"), "secret key of s3:// outputs")
	flag.StringVar(&conf.S3Region, "s3-region", os.Getenv("AWS_REGION"), "region of s3:// outputs")
	flag.StringVar(&conf.Listen, "listen", "", "address of the HTTP server (e.g. :8080). If empty, a single request is processed from the flags")
	flag.StringVar(&conf.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	if conf.Listen == "" && conf.Query == "" && conf.Collection == "" {
		return nil, fmt.Errorf("one of -query, -collection or -listen must be provided")
	}
	return &conf, nil
}

func main() {
	_ = godotenv.Load()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx); err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	conf, err := newAppConfig()
	if err != nil {
		return err
	}
	if err := log.SetLevel(conf.LogLevel); err != nil {
		return fmt.Errorf("log-level: %w", err)
	}
	f, err := newFetcher(ctx, conf)
	if err != nil {
		return err
	}

	if conf.Listen == "" {
		return runOnce(ctx, f, conf)
	}

	// HTTP Server
	router := mux.NewRouter()
	f.AddHandler(router)
	s := http.Server{
		Addr:    conf.Listen,
		Handler: handlers.RecoveryHandler()(handlers.CombinedLoggingHandler(os.Stdout, router)),
	}
	go func() {
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger(ctx).Fatal("fetcher.ListenAndServe", zap.Error(err))
		}
	}()
	log.Logger(ctx).Sugar().Infof("fetcher listening on %s", conf.Listen)

	<-ctx.Done()
	sctx, cncl := context.WithTimeout(context.Background(), 30*time.Second)
	defer cncl()
	return s.Shutdown(sctx)
}

func newFetcher(ctx context.Context, conf *appConfig) (*fetcher.Fetcher, error) {
	cfg, err := config.Load(conf.Policy)
	if err != nil {
		return nil, err
	}

	// Geocoder, optionally cached
	var g geocoder.Geocoder = nominatim.New(conf.GeocoderURL)
	if conf.GeocoderCache != "" {
		store, err := cache.Open(ctx, conf.GeocoderCache)
		if err != nil {
			return nil, err
		}
		g = cache.New(g, store, conf.GeocoderCacheTTL)
	}

	pixels, err := cog.New(conf.CachedTiles)
	if err != nil {
		return nil, err
	}

	p := packager.New(conf.Workdir)
	p.S3 = service.S3Options{
		AccessKeyID:     conf.S3AccessKey,
		SecretAccessKey: conf.S3SecretKey,
		Region:          conf.S3Region,
	}

	return &fetcher.Fetcher{
		Registry:   registry.Default(),
		Normalizer: aoi.Normalizer{Geocoder: g},
		Planner:    &planner.Planner{Policy: cfg.Planner},
		Dispatcher: &dispatcher.Dispatcher{
			Catalog:     stac.New(conf.StacURL, stac.NewSigner(conf.SasURL, conf.SubscriptionKey)),
			Pixels:      pixels,
			Tables:      geoparquet.NewReader(conf.Workdir),
			Stores:      zarr.NewHTTPOpener(),
			Workers:     cfg.Dispatcher.Workers,
			QuadkeyZoom: cfg.Dispatcher.QuadkeyZoom,
		},
		Packager: p,
		Metrics:  fetcher.NewMetrics(),
	}, nil
}

// runOnce processes the request of the flags and prints the result (or the structured error) on stdout
func runOnce(ctx context.Context, f *fetcher.Fetcher, conf *appConfig) error {
	in, err := aoi.ParseInput(conf.AOI)
	if err != nil {
		return printResult(nil, err)
	}

	var res *packager.FetchResult
	if conf.Collection != "" {
		res, err = f.DownloadGeometries(ctx, fetcher.GeometriesRequest{
			Collection: conf.Collection,
			AOI:        in,
			OutputDir:  conf.Output,
			Limit:      conf.Limit,
		})
		return printResult(res, err)
	}

	req := fetcher.DataRequest{
		Query:         conf.Query,
		AOI:           in,
		OutputDir:     conf.Output,
		MaxCloudCover: &conf.MaxCloudCover,
	}
	if conf.TimeRange != "" {
		req.TimeRange = &conf.TimeRange
	}
	if conf.Variables != "" {
		if err := json.Unmarshal([]byte(conf.Variables), &req.Variables); err != nil {
			return fmt.Errorf("variables: %w", err)
		}
	}
	res, err = f.DownloadData(ctx, req)
	return printResult(res, err)
}

func printResult(res *packager.FetchResult, err error) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err != nil {
		if e := enc.Encode(fetcher.ToStructured(err)); e != nil {
			return e
		}
		return err
	}
	return enc.Encode(res)
}
