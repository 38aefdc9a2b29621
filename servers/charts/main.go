// Command charts serves the chart tool and resource, over stdio by default
// or as a push-stream provider with -sse.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/vitalink/vitalink/internal/charts"
	"github.com/vitalink/vitalink/internal/mcpserver"
)

var (
	baseURL string
	sseAddr string
)

func init() {
	flag.StringVar(&baseURL, "base-url", "", "chart backend base URL")
	flag.StringVar(&sseAddr, "sse", "", "serve over SSE on this address (e.g. :8765) instead of stdio")
}

func main() {
	flag.Parse()

	server := charts.NewServer(baseURL)

	if sseAddr != "" {
		log.Printf("charts server listening on %s", sseAddr)
		if err := http.ListenAndServe(sseAddr, mcpserver.NewSSE(server).Routes()); err != nil {
			log.Fatalf("charts server: %v", err)
		}
		return
	}

	if err := server.ServeStdio(context.Background(), os.Stdin, os.Stdout); err != nil {
		log.Fatalf("charts server: %v", err)
	}
}
