package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/docker/go-units"
	"github.com/sir_venger/jsonl_collector/internal/logger"
	"github.com/sir_venger/jsonl_collector/pkg/chunkclient"
	"github.com/spf13/pflag"
)

// main загружает локальный jsonl-файл на сборщик постранично.
func main() {
	var (
		endpoint  = pflag.StringP("endpoint", "e", "http://127.0.0.1:8000/", "collector endpoint URL")
		file      = pflag.StringP("file", "f", "", "jsonl file to upload")
		roomID    = pflag.String("roomid", "", "room id")
		src       = pflag.String("src", "background", "record source")
		timestamp = pflag.String("timestamp", "", "record timestamp, default now in ms")
		pageSize  = pflag.Int("page-size", chunkclient.DefaultPageSize, "lines per page")
		retries   = pflag.Int("retries", 3, "retries per page")
		quiet     = pflag.BoolP("quiet", "q", false, "disable progress output")
	)
	pflag.Parse()

	log := logger.New("info", true, os.Stderr)
	if *file == "" || *roomID == "" {
		pflag.Usage()
		os.Exit(2)
	}
	if *timestamp == "" {
		*timestamp = fmt.Sprint(time.Now().UnixMilli())
	}

	lines, err := readLines(*file)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("read file")
	}

	opts := []chunkclient.Option{chunkclient.WithRetries(*retries, 30*time.Second)}
	if !*quiet {
		opts = append(opts, chunkclient.WithProgress(os.Stdout))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := chunkclient.New(opts...).Upload(ctx, *endpoint, chunkclient.Upload{
		RoomID:    *roomID,
		Src:       *src,
		Timestamp: *timestamp,
		Lines:     lines,
		PageSize:  *pageSize,
	})
	if err != nil {
		log.Fatal().Err(err).Str("endpoint", *endpoint).Msg("upload failed")
	}

	if res.Pages == 0 {
		log.Warn().Str("file", *file).Msg("nothing to upload")
		return
	}

	log.Info().
		Str("record", strings.Join([]string{*roomID, *src, *timestamp}, "-")).
		Int("pages", res.Pages).
		Str("sent", units.HumanSize(float64(res.Bytes))).
		Msg("uploaded")
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}

	return lines, sc.Err()
}
