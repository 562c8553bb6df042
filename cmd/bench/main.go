package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

func main() {
	addr := flag.String("addr", "http://localhost:3001", "node address")
	readAddr := flag.String("read-addr", "", "read from this node instead (exercises replication)")
	n := flag.Int("n", 5000, "requests")
	conc := flag.Int("c", 32, "concurrency")
	valSize := flag.Int("val", 128, "value size bytes")
	flag.Parse()

	if *readAddr == "" {
		*readAddr = *addr
	}

	client := &http.Client{Timeout: 5 * time.Second}
	var misses, failures atomic.Int64

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(*conc)
	start := time.Now()

	for i := 0; i < *n; i++ {
		g.Go(func() error {
			key := fmt.Sprintf("k%d", i)
			value := strings.Repeat(string(rune('a'+rand.Intn(26))), *valSize)

			if err := add(ctx, client, *addr, key, value); err != nil {
				failures.Add(1)
				return nil
			}
			status, err := query(ctx, client, *readAddr, key)
			switch {
			case err != nil:
				failures.Add(1)
			case status != http.StatusOK:
				misses.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	dur := time.Since(start)
	fmt.Printf("Completed %d ops in %s (%.2f ops/s)\n", *n*2, dur, float64(*n*2)/dur.Seconds())
	fmt.Printf("misses=%d failures=%d\n", misses.Load(), failures.Load())
}

func add(ctx context.Context, client *http.Client, addr, key, value string) error {
	body, err := json.Marshal(map[string]string{"key": key, "value": value})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+"/add", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("add %s: status %d", key, resp.StatusCode)
	}
	return nil
}

func query(ctx context.Context, client *http.Client, addr, key string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/query?key="+url.QueryEscape(key), nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
