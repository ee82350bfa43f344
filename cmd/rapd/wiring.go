package main

import (
	"fmt"

	"github.com/adapt/rap-engine/api"
	"github.com/adapt/rap-engine/canvas"
	"github.com/adapt/rap-engine/config"
	"github.com/adapt/rap-engine/extract"
	"github.com/adapt/rap-engine/rap"
	"github.com/adapt/rap-engine/rap/store"
	"github.com/adapt/rap-engine/store/sqlite"
)

// deps bundles everything a command needs to reconcile: where run state
// lives, how to reach the LMS, and how to build record sources per course.
type deps struct {
	state   rap.StateStore
	client  rap.LMSClient
	roster  rap.RosterProvider
	courses api.CourseLister
	sources api.SourceFactory
	close   func() error
}

// buildDeps wires the real stack from config, or the seeded in-memory
// stack when demo is set. Demo mode touches no database file and no
// network.
func buildDeps(cfg *config.Config, demo bool) (*deps, error) {
	if demo {
		fake := canvas.NewFake()
		seedDemo(fake)
		return &deps{
			state:   store.NewMemory(),
			client:  fake,
			roster:  fake,
			courses: fake,
			sources: demoSources(),
			close:   func() error { return nil },
		}, nil
	}

	st, err := sqlite.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	client, err := newCanvasClient(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &deps{
		state:   st,
		client:  client,
		roster:  client,
		courses: client,
		sources: configSources(cfg),
		close:   st.Close,
	}, nil
}

// newCanvasClient builds an authenticated Canvas client from config.
func newCanvasClient(cfg *config.Config) (*canvas.Client, error) {
	token, err := canvas.ReadTokenFile(cfg.Canvas.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read Canvas token: %w", err)
	}
	timeout, err := cfg.CanvasTimeout()
	if err != nil {
		return nil, err
	}
	return canvas.New(cfg.Canvas.BaseURL, token,
		canvas.WithTimeout(timeout),
		canvas.WithPageSize(cfg.Canvas.PageSize),
		canvas.WithLogger(logger),
	)
}

// configSources resolves a course's configured RAP sources at trigger
// time, so export files and legacy directories are re-read on every run.
func configSources(cfg *config.Config) api.SourceFactory {
	return func(course rap.CourseID) ([]rap.RecordSource, error) {
		cc, ok := cfg.Course(course)
		if !ok {
			return nil, fmt.Errorf("course %s has no configured sources", course)
		}

		var sources []rap.RecordSource
		if cc.TabularExport != "" {
			sources = append(sources, &extract.TabularSource{Path: cc.TabularExport})
		}
		if cc.LegacyDir != "" {
			docs, err := extract.LoadDocumentsDir(cc.LegacyDir)
			if err != nil {
				return nil, fmt.Errorf("failed to load legacy documents: %w", err)
			}
			sources = append(sources, &extract.LegacySource{Documents: docs})
		}
		return sources, nil
	}
}

// newReconciler assembles the engine over a dependency bundle.
func newReconciler(cfg *config.Config, d *deps) *rap.Reconciler {
	return &rap.Reconciler{
		Roster:      d.roster,
		Client:      d.client,
		State:       d.state,
		Concurrency: cfg.ApplyConcurrency,
		Logger:      logger,
	}
}
