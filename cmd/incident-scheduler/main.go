package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/berijalan/incident-scheduler/pkg/config"
	"github.com/berijalan/incident-scheduler/pkg/server"
)

var (
	port    string
	cfg     string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "incident-scheduler",
	Short: "Incident Report Scheduler",
	Long:  "A scheduling service that generates recurring incident reports from observability logs",
	Run:   runServer,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&cfg, "config", "c", "config.json", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	// Bind flags to viper
	if err := viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port")); err != nil {
		log.Printf("Failed to bind port flag: %v", err)
	}
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		log.Printf("Failed to bind config flag: %v", err)
	}
	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		log.Printf("Failed to bind verbose flag: %v", err)
	}
}

func runServer(cmd *cobra.Command, args []string) {
	if verbose {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	conf, err := config.LoadConfig(cfg)
	if err != nil {
		log.Printf("Failed to load config from %s, using defaults: %v", cfg, err)
		conf = config.DefaultConfig()
	}
	if port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			conf.Server.Port = parsed
		} else {
			log.Printf("Ignoring invalid port %q: %v", port, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := server.NewServer(ctx, conf)
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Printf("Shutting down")
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
		cancel()
	}()

	addr := ":" + strconv.Itoa(conf.Server.Port)
	log.Printf("Starting incident-scheduler on %s", addr)
	if err := srv.Start(ctx, addr); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
