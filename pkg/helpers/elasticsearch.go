package helpers

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
)

// ESOptions configures the search client. APIKey wins over basic auth.
type ESOptions struct {
	Addresses []string
	Username  string
	Password  string
	APIKey    string
	// Timeout bounds dialing and waiting for response headers.
	Timeout time.Duration
}

// NewESClient builds an Elasticsearch client for index sync. Sweeps retry on
// their next trigger, so the client retries a request only once.
func NewESClient(o ESOptions) (*elasticsearch.Client, error) {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	cfg := elasticsearch.Config{
		Addresses:           o.Addresses,
		MaxRetries:          1,
		CompressRequestBody: true,
		Transport: &http.Transport{
			MaxIdleConnsPerHost:   10,
			ResponseHeaderTimeout: timeout,
			TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
			DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
		},
	}
	if o.APIKey != "" {
		cfg.APIKey = o.APIKey
	} else {
		cfg.Username, cfg.Password = o.Username, o.Password
	}
	return elasticsearch.NewClient(cfg)
}
