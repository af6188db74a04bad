package main

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/TaceoLabs/oprf-key-registry/keygen"
	"github.com/TaceoLabs/oprf-key-registry/proof"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config is the resolved process configuration.
type Config struct {
	Listen            string
	DataDir           string
	NumPeers          int
	Threshold         int
	Admins            []common.Address
	Peers             []common.Address
	EventRetention    int
	TrustCallerHeader bool
	Verifier          VerifierConfig
	TLS               TLSConfig
	Log               LogConfig
}

// VerifierConfig selects the proof verifier. Exactly one of URL and
// AcceptAll must be set.
type VerifierConfig struct {
	URL       string
	AcceptAll bool
	Timeout   time.Duration
}

// TLSConfig names the server certificate and, for client authentication,
// the CA that signs peer certificates.
type TLSConfig struct {
	Cert string
	Key  string
	CA   string
}

type LogConfig struct {
	Level  string
	Format string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("num_peers", 3)
	v.SetDefault("threshold", 2)
	v.SetDefault("event_retention", 4096)
	v.SetDefault("verifier.timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// loadConfig resolves and validates the configuration held by v.
func loadConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Listen:            v.GetString("listen"),
		DataDir:           v.GetString("data_dir"),
		NumPeers:          v.GetInt("num_peers"),
		Threshold:         v.GetInt("threshold"),
		EventRetention:    v.GetInt("event_retention"),
		TrustCallerHeader: v.GetBool("trust_caller_header"),
		Verifier: VerifierConfig{
			URL:       v.GetString("verifier.url"),
			AcceptAll: v.GetBool("verifier.accept_all"),
			Timeout:   v.GetDuration("verifier.timeout"),
		},
		TLS: TLSConfig{
			Cert: v.GetString("tls.cert"),
			Key:  v.GetString("tls.key"),
			CA:   v.GetString("tls.ca"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	p := keygen.Params{NumPeers: cfg.NumPeers, Threshold: cfg.Threshold}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var err error
	if cfg.Admins, err = parseAddresses("admins", v.GetStringSlice("admins")); err != nil {
		return nil, err
	}
	if cfg.Peers, err = parseAddresses("peers", v.GetStringSlice("peers")); err != nil {
		return nil, err
	}
	if (cfg.TLS.Cert == "") != (cfg.TLS.Key == "") {
		return nil, fmt.Errorf("tls.cert and tls.key must be set together")
	}
	if cfg.TLS.CA != "" && cfg.TLS.Cert == "" {
		return nil, fmt.Errorf("tls.ca requires tls.cert and tls.key")
	}
	return cfg, nil
}

func parseAddresses(key string, vals []string) ([]common.Address, error) {
	var out []common.Address
	for _, s := range vals {
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("%s: invalid address %q", key, s)
		}
		out = append(out, common.HexToAddress(s))
	}
	return out, nil
}

// verifiers builds the verifier set for the configured roster shape.
func (c *Config) verifiers(log zerolog.Logger) (*proof.Set, error) {
	set := proof.NewSet()
	shape := proof.Shape{Threshold: c.Threshold, NumPeers: c.NumPeers}
	switch {
	case c.Verifier.URL != "" && c.Verifier.AcceptAll:
		return nil, fmt.Errorf("verifier.url and verifier.accept_all are mutually exclusive")
	case c.Verifier.URL != "":
		set.Register(shape.Threshold, shape.NumPeers, proof.NewHTTPVerifier(c.Verifier.URL, shape, c.Verifier.Timeout))
		log.Info().Str("url", c.Verifier.URL).Stringer("shape", shape).Msg("using remote proof verifier")
	case c.Verifier.AcceptAll:
		set.Register(shape.Threshold, shape.NumPeers, proof.AcceptAll{})
		log.Warn().Stringer("shape", shape).Msg("proof verification disabled, every proof is accepted")
	default:
		return nil, fmt.Errorf("no proof verifier: set verifier.url, or verifier.accept_all for development")
	}
	return set, nil
}

// serverTLS returns nil when TLS is not configured. With a CA, peers may
// present a client certificate whose CommonName is their address.
func (c *Config) serverTLS() (*tls.Config, error) {
	if c.TLS.Cert == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(c.TLS.Cert, c.TLS.Key)
	if err != nil {
		return nil, fmt.Errorf("load tls key pair: %w", err)
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
	}
	if c.TLS.CA != "" {
		pem, err := os.ReadFile(c.TLS.CA)
		if err != nil {
			return nil, fmt.Errorf("read tls ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("tls ca %s: no certificates found", c.TLS.CA)
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	}
	return cfg, nil
}
