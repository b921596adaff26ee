package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"github.com/1f349/bluebell/conf"
	"github.com/1f349/bluebell/logger"
	"github.com/1f349/bluebell/resolver"
	"github.com/1f349/bluebell/server"
	"github.com/1f349/bluebell/server/api"
	"github.com/1f349/bluebell/zone"
	"github.com/1f349/mjwt"
	"github.com/cloudflare/tableflip"
	"github.com/google/subcommands"
	"github.com/spf13/afero"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
)

type serveCmd struct {
	configPath string
	pidFile    string
}

func (s *serveCmd) Name() string { return "serve" }

func (s *serveCmd) Synopsis() string { return "Serve authoritative DNS zones" }

func (s *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.configPath, "conf", "", "/path/to/config.yml : path to the config file")
	f.StringVar(&s.pidFile, "pid", "", "/path/to/bluebell.pid : pid file used for graceful upgrades")
}

func (s *serveCmd) Usage() string {
	return `serve [-conf <config file>] [-pid <pid file>]
  Serve authoritative DNS zones using information from the config file, send
  SIGHUP to restart without dropping the listening sockets
`
}

func (s *serveCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	logger.Logger.Info("Starting...")

	if s.configPath == "" {
		logger.Logger.Error("Config flag is missing")
		return subcommands.ExitUsageError
	}

	configPathAbs, err := filepath.Abs(s.configPath)
	if err != nil {
		logger.Logger.Fatal("Failed to get absolute config path")
	}
	wd := filepath.Dir(configPathAbs)
	wdFs := afero.NewBasePathFs(afero.NewOsFs(), wd)

	config, err := conf.Load(wdFs, filepath.Base(configPathAbs))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Logger.Error("Missing config file")
		} else {
			logger.Logger.Error("Invalid config file", "err", err)
		}
		return subcommands.ExitFailure
	}
	if err := logger.SetLevel(config.LogLevel); err != nil {
		logger.Logger.Error("Invalid log level", "err", err)
		return subcommands.ExitFailure
	}

	res, err := loadZones(config, wdFs)
	if err != nil {
		logger.Logger.Error("Failed to load zones", "err", err)
		return subcommands.ExitFailure
	}

	err = normalLoad(config, wdFs, res, s.pidFile)
	if err != nil {
		logger.Logger.Error("Server failed", "err", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// loadZones builds the resolver from the zones in the config, zone files are
// read relative to the config directory
func loadZones(config conf.Conf, wdFs afero.Fs) (*resolver.Resolver, error) {
	supported, err := config.SupportedAlgorithms()
	if err != nil {
		return nil, err
	}
	res := resolver.NewResolver(supported)

	for _, zc := range config.Zones {
		var z *zone.Zone
		if zc.File != "" {
			z, err = zone.Load(wdFs, zc.Name, zc.File)
			if err != nil {
				return nil, err
			}
		} else {
			z = zone.NewFromSoa(zc.Name, config.Soa)
		}
		if err := z.AddRecords(zc.Records); err != nil {
			return nil, err
		}

		updatePrefixes, err := zc.UpdatePrefixes()
		if err != nil {
			return nil, err
		}
		transferPrefixes, err := zc.TransferPrefixes()
		if err != nil {
			return nil, err
		}
		res.AddZone(z, resolver.Acl{Update: updatePrefixes, Transfer: transferPrefixes})
		logger.Logger.Info("Loaded zone", "zone", z.Origin(), "serial", z.Serial(), "rrsets", z.Len())
	}
	return res, nil
}

func normalLoad(config conf.Conf, wdFs afero.Fs, res *resolver.Resolver, pidFile string) error {
	upg, err := tableflip.New(tableflip.Options{PIDFile: pidFile})
	if err != nil {
		return err
	}
	defer upg.Stop()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
		for s := range sig {
			if s != syscall.SIGHUP {
				upg.Stop()
				return
			}
			logger.Logger.Info("Upgrading")
			if err := upg.Upgrade(); err != nil {
				logger.Logger.Error("Upgrade failed", "err", err)
			}
		}
	}()

	udpSocket, err := upg.ListenPacket("udp", config.Listen.Dns)
	if err != nil {
		return err
	}
	tcpSocket, err := upg.Listen("tcp", config.Listen.Dns)
	if err != nil {
		return err
	}
	srv := server.NewDnsServer(tcpSocket, udpSocket, res)

	if config.Listen.Tls != "" {
		certPem, err := afero.ReadFile(wdFs, config.Tls.Cert)
		if err != nil {
			return err
		}
		keyPem, err := afero.ReadFile(wdFs, config.Tls.Key)
		if err != nil {
			return err
		}
		cert, err := tls.X509KeyPair(certPem, keyPem)
		if err != nil {
			return err
		}
		tlsSocket, err := upg.Listen("tcp", config.Listen.Tls)
		if err != nil {
			return err
		}
		srv.SetTls(tlsSocket, &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12})
	}

	logger.Logger.Info("Starting server", "dns", config.Listen.Dns, "tls", config.Listen.Tls)
	srv.Run()
	defer srv.Close()

	var apiServer *http.Server
	if config.Listen.Api != "" {
		keyStore, err := mjwt.NewKeyStoreFromDir(afero.NewBasePathFs(wdFs, config.ApiKeys))
		if err != nil {
			return err
		}
		apiSocket, err := upg.Listen("tcp", config.Listen.Api)
		if err != nil {
			return err
		}
		apiServer = &http.Server{
			Handler:           api.NewApiServer(res, keyStore),
			ReadTimeout:       time.Minute,
			ReadHeaderTimeout: time.Minute,
			WriteTimeout:      time.Minute,
			IdleTimeout:       time.Minute,
			MaxHeaderBytes:    2500,
		}
		logger.Logger.Info("Starting API server", "addr", config.Listen.Api)
		go func() {
			err := apiServer.Serve(apiSocket)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Logger.Error("API server failed", "err", err)
			}
		}()
	}

	if err := upg.Ready(); err != nil {
		return err
	}
	<-upg.Exit()
	logger.Logger.Info("Shutting down")

	if apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = apiServer.Shutdown(ctx)
	}
	return nil
}
