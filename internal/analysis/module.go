// Package analysis provides the chain analysis bounded context module.
// This file defines the module that encapsulates the pipeline wiring and
// route registration.
package analysis

import (
	"ticketchain/internal/analysis/handler"
	"ticketchain/internal/analysis/service"
	apphttp "ticketchain/internal/http"
	"ticketchain/platform/logger"
	"ticketchain/platform/validator"
)

// Module is the analysis bounded context module implementing http.Module.
type Module struct {
	pipeline    *service.Pipeline
	coordinator *service.Coordinator
	handler     *handler.Handler
}

// ModuleDeps are the collaborators the module needs beyond the pipeline.
type ModuleDeps struct {
	Reader    handler.Reader
	Artifacts handler.ArtifactLister
	Bucket    string
	MaxBatch  int
	Validator *validator.Validator
	Logger    *logger.Logger
}

// NewModule wires the batch coordinator and HTTP handler around a pipeline.
func NewModule(pipeline *service.Pipeline, deps ModuleDeps) *Module {
	coordinator := service.NewCoordinator(pipeline, deps.MaxBatch, deps.Logger)
	val := deps.Validator
	if val == nil {
		val = validator.New()
	}
	return &Module{
		pipeline:    pipeline,
		coordinator: coordinator,
		handler:     handler.New(pipeline, coordinator, deps.Reader, deps.Artifacts, deps.Bucket, val),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "analysis"
}

// Pipeline returns the single-chain pipeline.
func (m *Module) Pipeline() *service.Pipeline {
	return m.pipeline
}

// Coordinator returns the batch coordinator.
func (m *Module) Coordinator() *service.Coordinator {
	return m.coordinator
}

// RegisterRoutes mounts the analysis routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterReadRoutes(ctx.V1)
	m.handler.RegisterWriteRoutes(ctx.Limited)
}

var _ apphttp.Module = (*Module)(nil)
