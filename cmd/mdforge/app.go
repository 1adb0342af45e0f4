package main

import (
	"fmt"
	"strconv"

	"github.com/mdforge/mdforge/internal/agentdef"
	"github.com/mdforge/mdforge/internal/cascade"
	"github.com/mdforge/mdforge/internal/config"
	"github.com/mdforge/mdforge/internal/execengine"
	"github.com/mdforge/mdforge/internal/logstream"
	"github.com/mdforge/mdforge/internal/obslog"
	"github.com/mdforge/mdforge/internal/storage"
)

// app bundles every component main.go's subcommands need, built once from
// the resolved config. Every subcommand shares the same database, so
// construction happens once in newApp rather than per-subcommand.
type app struct {
	cfg      config.Config
	log      *obslog.Logger
	docs     storage.DocumentStore
	execs    storage.ExecutionRecordStore
	runs     storage.CascadeRunStore
	agents   *agentdef.Service
	streams  *logstream.Manager
	exec     *execengine.Engine
	cascade  *cascade.Engine
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := obslog.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	db, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	docs := storage.NewDocumentStore(db, log)
	execs := storage.NewExecutionRecordStore(db, log)
	runs := storage.NewCascadeRunStore(db, log)
	agentStore := storage.NewAgentDefinitionStore(db, log)
	agents := agentdef.New(agentStore, log)

	streams := logstream.NewManager(log)
	execEngine := execengine.New(execs, streams, log)

	cascadeEngine := cascade.New(docs, execs, runs, execEngine, cascade.Options{
		Prompts:         stagePromptsFromConfig(cfg),
		DefaultTimeout:  cfg.DefaultTimeout,
		ImplTimeout:     cfg.ImplTimeout,
		AssistantBinary: cfg.AssistantBinary,
		AllowedTools:    cfg.AllowedTools,
		Model:           cfg.AssistantModel,
		LogsRoot:        cfg.LogsRoot,
		ScratchRoot:     cfg.ScratchRoot,
	}, log)

	return &app{
		cfg: cfg, log: log, docs: docs, execs: execs, runs: runs,
		agents: agents, streams: streams, exec: execEngine, cascade: cascadeEngine,
	}, nil
}

// resolveAgentDefinition accepts either a numeric Agent Definition id or its
// name, matching the "<name|id>" shape agent run takes on the command line.
func (a *app) resolveAgentDefinition(ref string) (storage.AgentRow, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return a.agents.Get(id)
	}
	return a.agents.GetByName(ref)
}

func stagePromptsFromConfig(cfg config.Config) map[storage.Stage]string {
	if len(cfg.StagePrompts) == 0 {
		return nil
	}
	out := make(map[storage.Stage]string, len(cfg.StagePrompts))
	for k, v := range cfg.StagePrompts {
		if stage, err := storage.ParseStage(k); err == nil {
			out[stage] = v
		}
	}
	return out
}
