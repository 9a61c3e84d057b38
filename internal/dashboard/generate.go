// Package dashboard renders Grafana dashboards for the GreptimeDB tables the
// reactor writes.
package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"reactor-sim/internal/eventlog"
	"reactor-sim/internal/telemetry"
)

//go:embed templates/*.json.tmpl
var templates embed.FS

// Tables names the GreptimeDB tables referenced by the queries.
type Tables struct {
	Telemetry string
	Logs      string
	State     string
	Reactions string
}

// DefaultTables uses the table names the writers resolve from the
// environment.
func DefaultTables() Tables {
	return Tables{
		Telemetry: telemetry.TableName,
		Logs:      eventlog.TableName,
		State:     telemetry.StateTableName,
		Reactions: telemetry.ReactionTableName,
	}
}

// Render executes every embedded template and writes the dashboards to
// outDir. Templates read the datasource UID through the env function, so
// GREPTIMEDB_DATASOURCE_UID must be set.
func Render(outDir string, tables Tables) error {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}

	t, err := template.New("dashboards").Funcs(funcMap).ParseFS(templates, "templates/*.json.tmpl")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, tpl := range t.Templates() {
		name := tpl.Name()
		if !strings.HasSuffix(name, ".tmpl") {
			continue
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(name, ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := tpl.Execute(f, tables); err != nil {
			f.Close()
			return fmt.Errorf("render %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
