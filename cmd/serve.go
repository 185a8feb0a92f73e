package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"memdev/blockdev"
	"memdev/config"
	"memdev/device"
	"memdev/exception"
	"memdev/jsonrpc"
	"memdev/logx"
	"memdev/monitoring"

	"github.com/spf13/cobra"
)

const (
	defaultListenAddr  = ":8899"
	defaultMetricsAddr = ":9100"
	defaultDeviceName  = "mem0"

	shutdownTimeout = 10 * time.Second
)

var (
	configPath       string
	serverConfigPath string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the device server",
	Run: func(cmd *cobra.Command, args []string) {
		serve(configPath, serverConfigPath)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "config/memdev.yml", "Path to the devices yaml config")
	serveCmd.Flags().StringVar(&serverConfigPath, "server-config", "config/server.ini", "Path to the server tuning ini config")
}

func serve(configPath, serverConfigPath string) {
	monitoring.InitMetrics()

	cfg := loadConfiguration(configPath)

	registry := device.NewRegistry()
	for _, entry := range cfg.Devices {
		if _, err := registry.Register(entry.Name, entry.StoreConfig()); err != nil {
			logx.Error("CMD", "Failed to register device ", entry.Name, ": ", err)
			os.Exit(1)
		}
	}

	metricsMux := http.NewServeMux()
	monitoring.RegisterMetrics(metricsMux)
	exception.SafeGo("metrics-listener", func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, metricsMux); err != nil {
			logx.Error("CMD", "Metrics listener stopped: ", err)
		}
	})

	rpcServer := jsonrpc.NewServer(cfg.ListenAddr, registry)
	if serverCfg, err := config.LoadServerConfig(serverConfigPath); err == nil {
		if serverCfg.MaxBodyBytes > 0 {
			rpcServer.SetMaxTransfer(int(serverCfg.MaxBodyBytes))
		}
		rpcServer.SetTimeouts(
			time.Duration(serverCfg.ReadTimeoutMs)*time.Millisecond,
			time.Duration(serverCfg.WriteTimeoutMs)*time.Millisecond,
		)
	} else {
		logx.Warn("CMD", "Server tuning config not loaded, using defaults: ", err)
	}
	rpcServer.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logx.Info("CMD", "Received signal ", sig, ", shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rpcServer.Stop(ctx); err != nil {
		logx.Error("CMD", "Shutdown failed: ", err)
	}
}

// loadConfiguration falls back to a single unbounded default device when the
// yaml file is absent, so `memdev serve` works out of the box.
func loadConfiguration(path string) *config.DeviceConfig {
	cfg, err := config.LoadDeviceConfig(path)
	if err != nil {
		logx.Warn("CMD", "Device config not loaded, using defaults: ", err)
		cfg = &config.DeviceConfig{
			Devices: []config.DeviceEntry{
				{Name: defaultDeviceName, CapacityHint: blockdev.DefaultCapacityHint},
			},
		}
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = defaultMetricsAddr
	}
	return cfg
}
