package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yairfalse/traceview/pkg/config"
	"github.com/yairfalse/traceview/pkg/domain"
	"github.com/yairfalse/traceview/pkg/format/jsonl"
	"github.com/yairfalse/traceview/pkg/pipeline"
	"github.com/yairfalse/traceview/pkg/registry"
	"github.com/yairfalse/traceview/pkg/stream"
)

// session bundles the open registry and the merged entry array the
// sub-commands query.
type session struct {
	reg     *registry.Registry
	entries []domain.Entry
	logger  *zap.Logger
}

// openSession loads the config, opens every configured stream (plus any
// extra files given on the command line), applies the configured
// filters and loads everything into one merged array.
func openSession(ctx context.Context, extraFiles []string) (*session, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	loader := config.NewLoader()
	if cfgFile != "" {
		loader = loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	reg := registry.New(cfg.Session.MaxStreams, logger)
	reg.SetFilterMask(viewMask(cfg.Session.Views))
	reg.RegisterFormat(jsonl.New(logger))

	for _, sc := range cfg.Streams {
		if err := openStream(reg, sc); err != nil {
			reg.CloseAll()
			return nil, err
		}
	}
	for _, file := range extraFiles {
		if err := openStream(reg, config.StreamConfig{File: file}); err != nil {
			reg.CloseAll()
			return nil, err
		}
	}
	if reg.Count() == 0 {
		reg.CloseAll()
		return nil, fmt.Errorf("no streams: configure streams in traceview.yaml or pass trace files")
	}

	pipe := pipeline.NewLoader(reg, logger)
	entries, err := pipe.LoadAll(ctx)
	if err != nil {
		reg.CloseAll()
		return nil, err
	}
	return &session{reg: reg, entries: entries, logger: logger}, nil
}

func (s *session) close() {
	s.reg.CloseAll()
	s.logger.Sync()
}

// openStream opens one configured trace source. A named format opens
// the file directly; without one, the registry probes every registered
// format.
func openStream(reg *registry.Registry, sc config.StreamConfig) error {
	var id int
	var err error
	if sc.Format == "" {
		id, err = reg.Open(sc.File)
	} else {
		f, ok := reg.FormatByName(sc.Format)
		if !ok {
			return fmt.Errorf("unknown format %q for %s", sc.Format, sc.File)
		}
		id, err = reg.OpenWith(sc.File, f)
	}
	if err != nil {
		return err
	}
	st, err := reg.Get(id)
	if err != nil {
		return err
	}

	if sc.ClockOffset != 0 {
		st.SetCalibration(domain.OffsetCalib, []int64{sc.ClockOffset})
	}
	st.SetFilter(stream.ShowTaskFilter, sc.Filters.ShowTasks)
	st.SetFilter(stream.HideTaskFilter, sc.Filters.HideTasks)
	st.SetFilter(stream.ShowEventFilter, sc.Filters.ShowEvents)
	st.SetFilter(stream.HideEventFilter, sc.Filters.HideEvents)
	st.SetFilter(stream.ShowCPUFilter, sc.Filters.ShowCPUs)
	st.SetFilter(stream.HideCPUFilter, sc.Filters.HideCPUs)
	if sc.Filters.Content != "" {
		if err := st.SetContentFilter(sc.Filters.Content); err != nil {
			return err
		}
	}
	return nil
}

func viewMask(views []string) uint8 {
	if len(views) == 0 {
		return domain.AllViewsMask
	}
	var mask uint8
	for _, v := range views {
		switch v {
		case "text":
			mask |= domain.TextViewMask
		case "graph":
			mask |= domain.GraphViewMask
		case "event":
			mask |= domain.EventViewMask
		}
	}
	return mask
}
