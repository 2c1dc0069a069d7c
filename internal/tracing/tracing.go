// Package tracing installs an OpenTelemetry tracer provider that appends
// finished spans, one JSON object per line, to a file beside the results store.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/nvandessel/rnmc/internal/constants"
)

// Provider is a tracer provider backed by a span file.
type Provider struct {
	*sdktrace.TracerProvider
	file *os.File
	path string
}

// NewFileProvider creates dir if needed and exports spans to
// dir/traces.jsonl. Spans are buffered until Shutdown.
func NewFileProvider(dir string) (*Provider, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}

	path := filepath.Join(dir, constants.TraceFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create span exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "rnmc"),
		)),
	)
	return &Provider{TracerProvider: tp, file: f, path: path}, nil
}

// Path returns the span file.
func (p *Provider) Path() string { return p.path }

// Shutdown flushes pending spans and closes the span file.
func (p *Provider) Shutdown(ctx context.Context) error {
	err := p.TracerProvider.Shutdown(ctx)
	return errors.Join(err, p.file.Close())
}
