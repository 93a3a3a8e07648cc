package main

import (
	"github.com/mastercactapus/grblstream/config"
	"github.com/mastercactapus/grblstream/machine"
	"github.com/mastercactapus/grblstream/stream"
)

func sessionOptions(cfg *config.Config) stream.Options {
	opt := stream.Options{
		BufferSize:     cfg.GrblBufferSize,
		Lookahead:      cfg.StreamPendingCount,
		StartupTimeout: cfg.StartupDuration(),
		RejectPolicy:   stream.RejectPolicy(cfg.RejectPolicy),
		Jogging:        cfg.InteractiveJogging,
		Jog: machine.JogOptions{
			Distance:    cfg.JoggingInitValue,
			FeedRate:    cfg.JoggingFeedRate,
			Inches:      cfg.JoggingUnit == "inch",
			GrblJogging: cfg.UseGrblJogging,
		},
		JogSteps: cfg.JoggingValues,
		KeepOpen: cfg.KeepOpen,
	}
	if cfg.StatusPolling {
		opt.PollInterval = cfg.PollInterval()
	}
	return opt
}
