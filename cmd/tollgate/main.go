// tollgate is a standalone payment gateway: it protects a set of configured
// demo routes with per-request Lightning payments and exposes the booth's
// dashboard and Prometheus metrics.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-yaml"
	flags "github.com/jessevdk/go-flags"
	"github.com/lightninglabs/toll"
	"github.com/lightninglabs/toll/wallet"
)

const (
	defaultListenAddr     = "localhost:8080"
	defaultLogDir         = "."
	defaultLogLevel       = "info"
	defaultNetwork        = "mainnet"
	defaultShutdownWindow = 5 * time.Second
)

type lndConfig struct {
	Host    string `long:"host" yaml:"host" description:"Hostname of the lnd instance to connect to."`
	TLSPath string `long:"tlspath" yaml:"tlspath" description:"Path to lnd's TLS certificate."`
	MacDir  string `long:"macdir" yaml:"macdir" description:"Directory containing lnd's macaroons."`
	Network string `long:"network" yaml:"network" description:"The network lnd runs on."`
}

type routeConfig struct {
	Path         string `yaml:"path"`
	Sats         int64  `yaml:"sats"`
	Description  string `yaml:"description"`
	FreeRequests int    `yaml:"freerequests"`
	FreeWindow   string `yaml:"freewindow"`
}

type config struct {
	ListenAddr string `long:"listenaddr" yaml:"listenaddr" description:"The interface to listen on for client requests."`
	ConfigFile string `long:"configfile" yaml:"-" description:"Path to the YAML configuration file."`
	LogDir     string `long:"logdir" yaml:"logdir" description:"Directory to write log files to."`
	DebugLevel string `long:"debuglevel" yaml:"debuglevel" description:"Debug level, either for all subsystems or per subsystem."`

	Secret           string `long:"secret" yaml:"secret" description:"Hex encoded minting secret, at least 32 bytes."`
	DefaultSats      int64  `long:"defaultsats" yaml:"defaultsats" description:"Price in satoshis for routes without their own."`
	InvoiceExpiry    int64  `long:"invoiceexpiry" yaml:"invoiceexpiry" description:"Invoice expiry in seconds."`
	MacaroonExpiry   int64  `long:"macaroonexpiry" yaml:"macaroonexpiry" description:"Credential expiry in seconds."`
	BindIP           bool   `long:"bindip" yaml:"bindip" description:"Bind credentials to the client identifier."`
	ReplayProtection bool   `long:"replayprotection" yaml:"replayprotection" description:"Reject a second admission with the same payment hash."`

	Lnd *lndConfig `long:"lnd" yaml:"lnd" description:"Connection settings for the lnd node backing the gateway."`

	Routes []*routeConfig `yaml:"routes"`
}

func defaultConfig() *config {
	return &config{
		ListenAddr: defaultListenAddr,
		LogDir:     defaultLogDir,
		DebugLevel: defaultLogLevel,
		Lnd: &lndConfig{
			Network: defaultNetwork,
		},
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// Parse the command line once to learn where the config file lives,
	// load it, then parse again so command line flags override the file.
	cfg := defaultConfig()
	if _, err := flags.Parse(cfg); err != nil {
		return err
	}
	if cfg.ConfigFile != "" {
		fileContent, err := os.ReadFile(cfg.ConfigFile)
		if err != nil {
			return fmt.Errorf("unable to read config file: %v",
				err)
		}
		if err := yaml.Unmarshal(fileContent, cfg); err != nil {
			return fmt.Errorf("unable to parse config file: %v",
				err)
		}
		if _, err := flags.Parse(cfg); err != nil {
			return err
		}
	}

	if err := toll.SetupLogging(cfg.LogDir, cfg.DebugLevel); err != nil {
		return fmt.Errorf("unable to set up logging: %v", err)
	}
	defer func() {
		_ = toll.CloseLogging()
	}()

	secret, err := hex.DecodeString(cfg.Secret)
	if err != nil {
		return fmt.Errorf("unable to parse secret: %v", err)
	}

	if cfg.Lnd == nil || cfg.Lnd.Host == "" {
		return fmt.Errorf("missing lnd connection configuration")
	}
	lndWallet, err := wallet.NewLndWallet(
		cfg.Lnd.Host, cfg.Lnd.TLSPath, cfg.Lnd.MacDir,
		cfg.Lnd.Network,
	)
	if err != nil {
		return fmt.Errorf("unable to connect to lnd: %v", err)
	}

	boothCfg := toll.DefaultConfig()
	boothCfg.Wallet = lndWallet
	boothCfg.Secret = secret
	boothCfg.BindIP = cfg.BindIP
	boothCfg.ReplayProtection = cfg.ReplayProtection
	if cfg.DefaultSats > 0 {
		boothCfg.DefaultSats = cfg.DefaultSats
	}
	if cfg.InvoiceExpiry > 0 {
		boothCfg.InvoiceExpiry =
			time.Duration(cfg.InvoiceExpiry) * time.Second
	}
	if cfg.MacaroonExpiry > 0 {
		boothCfg.MacaroonExpiry =
			time.Duration(cfg.MacaroonExpiry) * time.Second
	}

	booth, err := toll.New(&boothCfg)
	if err != nil {
		return fmt.Errorf("unable to create toll booth: %v", err)
	}
	defer func() {
		_ = booth.Close()
	}()

	mux := http.NewServeMux()
	for _, route := range cfg.Routes {
		gate := booth.Gate(toll.RouteOptions{
			Sats:         route.Sats,
			Description:  route.Description,
			FreeRequests: route.FreeRequests,
			FreeWindow:   route.FreeWindow,
		})
		mux.Handle(route.Path, gate(demoHandler(route.Path)))
	}
	mux.Handle("/dashboard", booth.Dashboard())
	mux.Handle("/metrics", booth.Metrics())

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.ListenAndServe()
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err

	case sig := <-signalChan:
		fmt.Printf("Received %v, shutting down\n", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), defaultShutdownWindow,
	)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

// demoHandler serves a small JSON document reflecting the admission details
// of the request that reached it.
func demoHandler(path string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := struct {
			Endpoint string `json:"endpoint"`
			Paid     bool   `json:"paid"`
			Free     bool   `json:"free"`
			Amount   int64  `json:"amountSats,omitempty"`
		}{Endpoint: path}

		if info, ok := toll.InfoFromContext(r.Context()); ok {
			response.Paid = info.Paid
			response.Free = info.Free
			response.Amount = info.AmountSats
		}

		w.Header().Set(
			"Content-Type", "application/json; charset=utf-8",
		)
		if err := json.NewEncoder(w).Encode(&response); err != nil {
			fmt.Fprintf(os.Stderr, "unable to write response: %v\n",
				err)
		}
	})
}
