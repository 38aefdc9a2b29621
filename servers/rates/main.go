// Command rates serves the currency tools over stdio.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/vitalink/vitalink/internal/rates"
)

var baseURL string

func init() {
	flag.StringVar(&baseURL, "base-url", "", "exchange-rate backend base URL (default public backend)")
}

func main() {
	flag.Parse()

	server := rates.NewServer(baseURL)
	if err := server.ServeStdio(context.Background(), os.Stdin, os.Stdout); err != nil {
		log.Fatalf("rates server: %v", err)
	}
}
