// Command biometrics serves the health-sample tools and resources over
// stdio. The backend base URL comes from -base-url or BIOMETRIC_API_BASE.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/vitalink/vitalink/internal/biometrics"
)

var baseURL string

func init() {
	flag.StringVar(&baseURL, "base-url", "", "biometric backend base URL")
}

func main() {
	flag.Parse()

	server := biometrics.NewServer(baseURL)
	if err := server.ServeStdio(context.Background(), os.Stdin, os.Stdout); err != nil {
		log.Fatalf("biometrics server: %v", err)
	}
}
