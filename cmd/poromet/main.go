package main

import (
	"flag"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/poromet/poromet/internal/analysis"
	"github.com/poromet/poromet/internal/calib"
	"github.com/poromet/poromet/internal/config"
	"github.com/poromet/poromet/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to YAML configuration file")
		showVersion = flag.Bool("version", false, "print version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("poromet %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		return
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	table := calib.DefaultTable()
	if cfg.CalibrationFile != "" {
		table, err = calib.LoadTable(cfg.CalibrationFile)
		if err != nil {
			log.WithError(err).Fatal("failed to load calibration table")
		}
	}
	log.WithField("calibration", table.Version).Info("calibration table loaded")

	analyzer := analysis.New(table, analysis.Config{
		MaxPixels:          cfg.Analysis.MaxPixels,
		BinCount:           cfg.Analysis.BinCount,
		DenoiseSigma:       cfg.Analysis.DenoiseSigma,
		IncludeBorderPores: cfg.Analysis.IncludeBorderPores,
	}, log)

	srv := server.New(analyzer, server.Options{
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ResultCapacity: cfg.Results.Capacity,
	}, log)

	if err := srv.ListenAndServe(cfg.Server.Port); err != nil {
		log.WithError(err).Fatal("server error")
	}
}
