// Package main generates a development Certificate Authority (CA) and a
// server certificate signed by it, writing them under the "certs" directory.
// Clients trust the server by loading certs/ca.crt. With -ca-cert and
// -ca-key an existing CA signs the new server certificate instead.
package main

import (
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/atinyakov/practiceserver/internal/certgen"
)

// options are the command-line settings of the generator.
type options struct {
	dir    string
	hosts  []string
	caCert string
	caKey  string
}

func main() {
	var (
		opts  options
		hosts string
	)
	flag.StringVar(&opts.dir, "dir", "certs", "output directory")
	flag.StringVar(&hosts, "hosts", strings.Join(certgen.DefaultHosts, ","), "server certificate hosts, comma separated")
	flag.StringVar(&opts.caCert, "ca-cert", "", "existing CA certificate to sign with")
	flag.StringVar(&opts.caKey, "ca-key", "", "existing CA key to sign with")
	flag.Parse()
	opts.hosts = strings.Split(hosts, ",")

	if err := run(opts); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Certificates generated into %s\n", opts.dir)
}

func run(opts options) error {
	caCert, caKey, err := loadOrCreateCA(opts)
	if err != nil {
		return err
	}
	certPEM, keyPEM, err := certgen.GenerateServerCertificate(opts.hosts, caCert, caKey)
	if err != nil {
		return err
	}
	return certgen.WriteFiles(filepath.Join(opts.dir, "server.crt"), filepath.Join(opts.dir, "server.key"), certPEM, keyPEM)
}

// loadOrCreateCA reads the CA given on the command line, or generates a new
// one and writes it next to the server certificate.
func loadOrCreateCA(opts options) (*x509.Certificate, any, error) {
	switch {
	case opts.caCert != "" && opts.caKey != "":
		return certgen.LoadCACredentials(opts.caCert, opts.caKey)
	case opts.caCert != "" || opts.caKey != "":
		return nil, nil, errors.New("-ca-cert and -ca-key must be set together")
	}

	caPEM, caKeyPEM, err := certgen.GenerateCA("Practice Server CA")
	if err != nil {
		return nil, nil, err
	}
	if err := certgen.WriteFiles(filepath.Join(opts.dir, "ca.crt"), filepath.Join(opts.dir, "ca.key"), caPEM, caKeyPEM); err != nil {
		return nil, nil, err
	}
	return certgen.ParseCA(caPEM, caKeyPEM)
}
