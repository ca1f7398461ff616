package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/ytget/pahedl"
	"github.com/ytget/pahedl/animepahe/quality"
	"github.com/ytget/pahedl/animepahe/series"
	"github.com/ytget/pahedl/downloader"
	"github.com/ytget/pahedl/internal/api"
	"github.com/ytget/pahedl/internal/config"
	"github.com/ytget/pahedl/internal/logger"
	"github.com/ytget/pahedl/internal/metrics"
	"github.com/ytget/pahedl/internal/sanitize"
	"github.com/ytget/pahedl/kwik/packer"
	"github.com/ytget/pahedl/pkg/client"
	"github.com/ytget/pahedl/types"
)

const defaultExportName = "links.txt"

type options struct {
	link       string
	episodes   string
	quality    int
	export     bool
	filename   string
	download   bool
	output     string
	noProgress bool
	serve      bool
	attempts   int
	engine     string
	envFile    string
	timeout    time.Duration
	retries    int
	ua         string
	proxy      string
	rateLimit  string
	listen     string
}

func main() {
	var opts options

	flag.StringVar(&opts.link, "link", "", "Series link (https://animepahe.ru/anime/<id>) or episode link (https://animepahe.ru/play/<id>/<session>)")
	flag.StringVar(&opts.episodes, "episodes", "all", "Episode range for a series link: 'all' or 'start-end'")
	flag.IntVar(&opts.quality, "quality", 0, "Target height: 0 highest, -1 lowest, otherwise closest (e.g., 720)")
	flag.BoolVar(&opts.export, "export", false, "Write the final links to -filename, one per line")
	flag.StringVar(&opts.filename, "filename", defaultExportName, "Export file name (letters, digits, _ - . and an extension)")
	flag.BoolVar(&opts.download, "download", false, "Download every resolved episode")
	flag.StringVar(&opts.output, "output", "", "Download directory. Empty uses PAHEDL_DOWNLOAD_DIR")
	flag.BoolVar(&opts.noProgress, "no-progress", false, "Disable progress bars")
	flag.BoolVar(&opts.serve, "serve", false, "Run the HTTP API instead of a one-shot resolution")
	flag.StringVar(&opts.listen, "listen", "", "API listen address. Empty uses PAHEDL_LISTEN")
	flag.IntVar(&opts.attempts, "attempts", 0, "Locker attempts per episode. 0 uses PAHEDL_MAX_ATTEMPTS")
	flag.StringVar(&opts.engine, "engine", "", "Decoder fallback engine: none, otto or goja")
	flag.StringVar(&opts.envFile, "env", config.DefaultEnvFile, "Optional .env file")
	flag.DurationVar(&opts.timeout, "http-timeout", 0, "HTTP timeout (e.g., 30s, 1m). 0 uses PAHEDL_HTTP_TIMEOUT")
	flag.IntVar(&opts.retries, "retries", -1, "HTTP retries for transient errors. -1 uses PAHEDL_HTTP_RETRIES")
	flag.StringVar(&opts.ua, "ua", "", "Override User-Agent header")
	flag.StringVar(&opts.proxy, "proxy", "", "Proxy URL (http/https/socks)")
	flag.StringVar(&opts.rateLimit, "rate-limit", "", "Download rate limit (e.g., 2MiB/s, 500KiB/s)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -link <series_or_episode_link> [flags]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s -serve [flags]\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}
	flag.Parse()
	opts.link = strings.TrimSpace(opts.link)

	cfg, err := config.Load(opts.envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}
	if err := applyFlags(&cfg, opts, explicitFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid flags: %v\n", err)
		os.Exit(2)
	}

	log, closer, err := logger.Setup(logger.EnvironmentConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	engine, err := packer.EngineByName(cfg.Engine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid engine: %v\n", err)
		os.Exit(2)
	}

	m := metrics.New()
	c := client.NewWith(client.Config{
		Timeout:           cfg.HTTPTimeout,
		Retries:           cfg.HTTPRetries,
		UserAgent:         cfg.UserAgent,
		ProxyURL:          cfg.Proxy,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	e := pahedl.New().
		WithClient(c).
		WithBaseURL(cfg.BaseURL).
		WithQuality(cfg.Quality).
		WithMaxAttempts(cfg.MaxAttempts).
		WithEngine(engine).
		WithCookieName(cfg.CookieName).
		WithMetrics(m).
		WithRateLimit(cfg.DownloadRate).
		WithChunkSize(cfg.ChunkSize)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.serve {
		log.WithComponent(logger.ComponentApp).Info("serving api", logger.Fields{"addr": cfg.Listen})
		if err := api.New(e, m).Run(ctx, cfg.Listen); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	rng, err := validate(cfg.BaseURL, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n", err)
		flag.Usage()
		os.Exit(2)
	}

	printBanner(os.Stdout, opts, cfg, rng)

	results, err := resolve(ctx, e, opts, cfg, rng)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	links := finalLinks(results)
	fmt.Fprintf(os.Stdout, "\nResolved %d/%d episodes\n", len(links), len(results))

	if opts.export {
		if err := exportLinks(opts.filename, links); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to export links: %v\n", err)
			os.Exit(1)
		}
		color.New(color.FgGreen).Print("==> ")
		fmt.Fprintf(os.Stdout, "Links written to %s\n", opts.filename)
	}

	if opts.download {
		if err := downloadAll(ctx, e, opts, cfg, results); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if len(links) == 0 {
		os.Exit(1)
	}
}

// explicitFlags reports which flags were set on the command line.
func explicitFlags() map[string]bool {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// applyFlags overrides cfg with the flags the user set and validates the result.
func applyFlags(cfg *config.Config, opts options, set map[string]bool) error {
	if set["quality"] {
		cfg.Quality = opts.quality
	}
	if set["attempts"] {
		cfg.MaxAttempts = opts.attempts
	}
	if set["engine"] {
		cfg.Engine = strings.ToLower(strings.TrimSpace(opts.engine))
	}
	if set["http-timeout"] {
		cfg.HTTPTimeout = opts.timeout
	}
	if set["retries"] {
		cfg.HTTPRetries = opts.retries
	}
	if set["ua"] {
		cfg.UserAgent = opts.ua
	}
	if set["proxy"] {
		cfg.Proxy = opts.proxy
	}
	if set["rate-limit"] {
		bps := parseRate(opts.rateLimit)
		if bps <= 0 {
			return fmt.Errorf("invalid rate limit %q", opts.rateLimit)
		}
		cfg.DownloadRate = bps
	}
	if set["output"] {
		cfg.DownloadDir = opts.output
	}
	if set["listen"] {
		cfg.Listen = opts.listen
	}
	return cfg.Validate()
}

// validate checks the link, range and export name of a one-shot run.
func validate(base string, opts options) (types.EpisodeRange, error) {
	link := opts.link
	switch {
	case link == "":
		return types.EpisodeRange{}, errors.New("-link is required")
	case series.IsSeriesLinkOn(base, link):
	case series.IsEpisodeLinkOn(base, link):
		if opts.episodes != "all" {
			return types.EpisodeRange{}, errors.New("-episodes only applies to series links")
		}
	default:
		return types.EpisodeRange{}, fmt.Errorf("invalid link %q: expected %s/anime/<id> or %s/play/<id>/<session>", link, base, base)
	}

	rng, err := series.ParseRange(opts.episodes)
	if err != nil {
		return types.EpisodeRange{}, err
	}
	if opts.export && !sanitize.IsValidExportName(opts.filename) {
		return types.EpisodeRange{}, fmt.Errorf("invalid export file name %q", opts.filename)
	}
	return rng, nil
}

func printBanner(w io.Writer, opts options, cfg config.Config, rng types.EpisodeRange) {
	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintf(w, "  link:     %s\n", opts.link)
	fmt.Fprintf(w, "  episodes: %s\n", rng)
	fmt.Fprintf(w, "  quality:  %s\n", quality.Describe(cfg.Quality))
	fmt.Fprintf(w, "  attempts: %d\n", cfg.MaxAttempts)
	fmt.Fprintf(w, "  engine:   %s\n", cfg.Engine)
	if opts.export {
		fmt.Fprintf(w, "  export:   %s\n", opts.filename)
	}
	if opts.download {
		fmt.Fprintf(w, "  download: %s\n", cfg.DownloadDir)
	}
	fmt.Fprintln(w)
}

// resolve runs one episode or a series range and prints per-episode status.
func resolve(ctx context.Context, e *pahedl.Extractor, opts options, cfg config.Config, rng types.EpisodeRange) ([]types.EpisodeResult, error) {
	if series.IsEpisodeLinkOn(cfg.BaseURL, opts.link) {
		number := 0
		if info, err := e.EpisodeInfo(ctx, opts.link); err == nil {
			color.New(color.FgCyan).Print(">>> ")
			fmt.Fprintf(os.Stdout, "%s, episode %s\n", info.Title, info.Number)
			number, _ = strconv.Atoi(info.Number)
		}
		res, _ := e.ResolveEpisode(ctx, opts.link)
		res.Index = number
		printResult(os.Stdout, res, 0)
		return []types.EpisodeResult{res}, nil
	}

	info, err := e.SeriesInfo(ctx, opts.link)
	if err != nil {
		return nil, err
	}
	color.New(color.FgCyan).Print(">>> ")
	fmt.Fprintf(os.Stdout, "%s (%s, %d episodes)\n", info.Title, info.Type, info.EpisodeCount)

	var bar *progressbar.ProgressBar
	width := padWidth(info.EpisodeCount)
	e = e.WithProgress(func(p pahedl.Progress) {
		if bar == nil && !opts.noProgress {
			bar = progressbar.Default(int64(p.Total), "resolving")
		}
		if bar != nil {
			_ = bar.Clear()
		}
		printResult(os.Stdout, p.Result, width)
		if bar != nil {
			_ = bar.Add(1)
		}
	})
	results, err := e.ResolveSeries(ctx, opts.link, rng)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stdout)
	}
	return results, err
}

func printResult(w io.Writer, res types.EpisodeResult, width int) {
	label := "EP" + padNumber(res.Index, width)
	if res.OK() {
		fmt.Fprintf(w, "%s %s %s\n", label, color.GreenString("OK!"), res.Candidate.DisplayName)
		return
	}
	fmt.Fprintf(w, "%s %s %v\n", label, color.RedString("FAIL!"), res.Err)
}

func finalLinks(results []types.EpisodeResult) []string {
	links := make([]string, 0, len(results))
	for _, r := range results {
		if r.OK() {
			links = append(links, r.DirectLink)
		}
	}
	return links
}

// exportLinks writes one link per line.
func exportLinks(name string, links []string) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, l := range links {
		if _, err := fmt.Fprintln(w, l); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// downloadAll saves every resolved episode into the download directory.
// Failures are reported and the remaining episodes continue.
func downloadAll(ctx context.Context, e *pahedl.Extractor, opts options, cfg config.Config, results []types.EpisodeResult) error {
	dir := cfg.DownloadDir
	if dir == "" {
		dir = "."
	}
	if !isDir(dir) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	failed := 0
	for _, r := range results {
		if !r.OK() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		title := "episode-" + padNumber(r.Index, 2)
		var bar *progressbar.ProgressBar
		if !opts.noProgress {
			bar = progressbar.NewOptions64(-1,
				progressbar.OptionSetDescription(title),
				progressbar.OptionShowBytes(true),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionClearOnFinish(),
			)
		}
		d := e.WithDownloadProgress(func(p downloader.Progress) {
			if bar == nil {
				return
			}
			if p.TotalSize > 0 && bar.GetMax64() != p.TotalSize {
				bar.ChangeMax64(p.TotalSize)
			}
			_ = bar.Set64(p.DownloadedSize)
		})
		path, err := d.Download(ctx, r.DirectLink, dir, title)
		if bar != nil {
			_ = bar.Finish()
		}
		if err != nil {
			failed++
			color.Red("### Download failed for %s: %v", title, err)
			continue
		}
		color.New(color.FgGreen).Print("==> ")
		fmt.Fprintf(os.Stdout, "Saved %s\n", filepath.Clean(path))
	}
	if failed > 0 {
		return fmt.Errorf("%d downloads failed", failed)
	}
	return nil
}

// padWidth is the digit count of the largest episode number.
func padWidth(total int) int {
	w := 2
	for n := total; n >= 100; n /= 10 {
		w++
	}
	return w
}

func padNumber(n, width int) string {
	return fmt.Sprintf("%0*d", width, n)
}

// parseRate parses strings like "2MiB/s", "500KiB/s" into bytes per second.
func parseRate(s string) int64 {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0
	}
	mul := int64(1)
	s = strings.TrimSuffix(s, "/S")
	s = strings.TrimSpace(s)
	sfx := ""
	for _, suf := range []string{"KIB", "MIB", "GIB", "KB", "MB", "GB"} {
		if strings.HasSuffix(s, suf) {
			sfx = suf
			s = strings.TrimSuffix(s, suf)
			break
		}
	}
	s = strings.TrimSpace(s)
	var val float64
	_, err := fmt.Sscanf(s, "%f", &val)
	if err != nil || val <= 0 {
		return 0
	}
	switch sfx {
	case "KIB":
		mul = 1024
	case "MIB":
		mul = 1024 * 1024
	case "GIB":
		mul = 1024 * 1024 * 1024
	case "KB":
		mul = 1000
	case "MB":
		mul = 1000 * 1000
	case "GB":
		mul = 1000 * 1000 * 1000
	}
	return int64(val * float64(mul))
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
