// Package main is an interactive shell for the practice server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/atinyakov/practiceserver/internal/client"
)

var (
	version   string
	buildDate string
)

// main parses command-line flags and runs a single command or the shell.
func main() {
	var (
		baseURL     string
		caFile      string
		sessionFile string
		admin       bool
		showVer     bool
	)

	flag.StringVar(&baseURL, "url", "http://localhost:3030", "server base URL")
	flag.StringVar(&caFile, "ca", "", "path to CA cert for HTTPS servers")
	flag.StringVar(&sessionFile, "session", client.DefaultSessionFile, "path to session file")
	flag.BoolVar(&admin, "admin", false, "send X-Admin with every request")
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	flag.Parse()

	if showVer {
		fmt.Printf("Practice Server Client\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}

	httpClient, err := client.NewHTTPClient(caFile)
	if err != nil {
		log.Fatal(err)
	}
	session, err := client.LoadSession(sessionFile)
	if err != nil {
		log.Fatalf("failed to load session: %v", err)
	}
	c := client.New(baseURL, httpClient, session)
	c.Admin = admin

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sh := &client.Shell{Client: c, In: os.Stdin, Out: os.Stdout}
	if args := flag.Args(); len(args) > 0 {
		if err := sh.Exec(ctx, strings.Join(args, " ")); err != nil {
			log.Fatal(err)
		}
		return
	}
	sh.Run(ctx)
}
