package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mediaforge/vidscale"
	"github.com/mediaforge/vidscale/pkg/pipeline"
)

func main() {
	input := flag.String("i", "", "input video path")
	output := flag.String("o", "", "output video path")
	configPath := flag.String("config", "", "YAML config path (optional)")
	benchmark := flag.Bool("benchmark", false, "decode and filter without encoding")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if *input == "" || (*output == "" && !*benchmark) {
		flag.Usage()
		os.Exit(2)
	}

	cfg := vidscale.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = vidscale.LoadConfig(*configPath); err != nil {
			logrus.WithError(err).Fatal("Failed to load config")
		}
	}
	if *benchmark {
		cfg.Benchmark = true
	}

	if err := vidscale.ConfigureLogging(cfg.LogLevel); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	proc := pipeline.NewContext()

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		logrus.Warn("Interrupt received, aborting")
		proc.Abort()
		<-signals
		logrus.Error("Second interrupt, exiting immediately")
		os.Exit(1)
	}()

	done := make(chan struct{})
	go reportProgress(proc, done)

	err := vidscale.ProcessVideo(*input, *output, cfg, proc)
	close(done)

	switch {
	case errors.Is(err, pipeline.ErrorAborted):
		logrus.Warn("Processing aborted")
		os.Exit(130)
	case err != nil:
		logrus.WithError(err).Fatal("Processing failed")
	}
}

func reportProgress(proc *pipeline.Context, done <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			progress := proc.Progress()
			if progress.ProcessedFrames == 0 {
				continue
			}
			fields := logrus.Fields{
				"frames": progress.ProcessedFrames,
				"fps":    int(progress.FPS),
			}
			if progress.TotalFrames > 0 {
				fields["total"] = progress.TotalFrames
			}
			logrus.WithFields(fields).Info("Progress")
		}
	}
}
