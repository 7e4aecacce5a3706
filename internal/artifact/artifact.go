// Package artifact persists rendered report documents. The engine only ever
// writes artifacts; reading them back is the UI's business.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/funnel-optimizer/internal/model"
)

// Store accepts one JSON document and one rendered-text document per
// (cadence, date). Writes for the same key overwrite.
type Store interface {
	Write(ctx context.Context, cadence model.Cadence, date string, jsonBody []byte, rendered string) error
}

// FSStore writes artifacts under a local directory, one subdirectory per
// cadence.
type FSStore struct {
	dir string
}

// NewFSStore creates the artifact directory tree if missing.
func NewFSStore(dir string) (*FSStore, error) {
	if dir == "" {
		return nil, eris.New("artifact: directory not configured")
	}
	for _, c := range []model.Cadence{model.CadenceDaily, model.CadenceWeekly, model.CadenceMonthly} {
		if err := os.MkdirAll(filepath.Join(dir, string(c)), 0o755); err != nil {
			return nil, eris.Wrapf(err, "artifact: create %s dir", c)
		}
	}
	return &FSStore{dir: dir}, nil
}

// Write stores report-<date>.json and report-<date>.md for the cadence. The
// JSON body is re-indented so artifacts diff cleanly between runs.
func (s *FSStore) Write(_ context.Context, cadence model.Cadence, date string, jsonBody []byte, rendered string) error {
	var pretty any
	if err := json.Unmarshal(jsonBody, &pretty); err != nil {
		return eris.Wrap(err, "artifact: report body is not JSON")
	}
	indented, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return eris.Wrap(err, "artifact: indent report body")
	}

	base := filepath.Join(s.dir, string(cadence), fmt.Sprintf("report-%s", date))
	if err := os.WriteFile(base+".json", append(indented, '\n'), 0o644); err != nil {
		return eris.Wrap(err, "artifact: write json document")
	}
	if err := os.WriteFile(base+".md", []byte(rendered), 0o644); err != nil {
		return eris.Wrap(err, "artifact: write rendered document")
	}

	zap.L().Info("artifact: report documents written",
		zap.String("cadence", string(cadence)),
		zap.String("date", date),
		zap.String("path", base+".md"),
	)
	return nil
}
