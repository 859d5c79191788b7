// Package export renders pipeline results as machine-readable reports.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/ahrav/go-cascade/internal/config"
	"github.com/ahrav/go-cascade/internal/domain"
	"github.com/ahrav/go-cascade/internal/pipeline"
	"github.com/ahrav/go-cascade/internal/provenance"
)

// Report is the serializable bundle of one pipeline run.
type Report struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	State       string    `json:"state"`
	FailedStage string    `json:"failed_stage,omitempty"`
	ScaleMax    float64   `json:"scale_max"`

	Global     *domain.GlobalScore     `json:"global,omitempty"`
	Clusters   []domain.ClusterScore   `json:"clusters,omitempty"`
	Areas      []domain.AreaScore      `json:"areas,omitempty"`
	Dimensions []domain.DimensionScore `json:"dimensions,omitempty"`

	Provenance *ProvenanceExport `json:"provenance,omitempty"`
}

// ProvenanceExport is the flattened provenance DAG.
type ProvenanceExport struct {
	Nodes []provenance.Node      `json:"nodes"`
	Edges [][2]provenance.NodeID `json:"edges"`
}

// BuildReport assembles a Report from a pipeline result, re-checking that
// every exported score sits inside the configured scale. A bound violation
// here means an aggregation invariant broke upstream, so the report is
// refused rather than published.
func BuildReport(cfg *config.Config, result *pipeline.Result) (*Report, error) {
	if err := checkBounds(cfg.ScaleMax, result); err != nil {
		return nil, err
	}

	report := &Report{
		RunID:       result.RunID,
		GeneratedAt: time.Now().UTC(),
		State:       string(result.State),
		FailedStage: result.FailedStage,
		ScaleMax:    cfg.ScaleMax,
		Global:      result.Global,
		Clusters:    result.Clusters,
		Areas:       result.Areas,
		Dimensions:  result.Dimensions,
	}
	if result.Provenance != nil {
		report.Provenance = &ProvenanceExport{
			Nodes: result.Provenance.Nodes(),
			Edges: result.Provenance.EdgeSet(),
		}
	}
	return report, nil
}

// WriteJSON renders the report as indented JSON.
func WriteJSON(w io.Writer, report *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

func checkBounds(scaleMax float64, result *pipeline.Result) error {
	check := func(kind, ref string, score float64) error {
		if math.IsNaN(score) || score < 0 || score > scaleMax {
			return fmt.Errorf("%w: %s %s score %.6f outside [0, %.2f]",
				domain.ErrPostconditionViolated, kind, ref, score, scaleMax)
		}
		return nil
	}

	for _, ds := range result.Dimensions {
		if err := check("dimension", string(ds.Area)+"/"+string(ds.Dimension), ds.Score); err != nil {
			return err
		}
	}
	for _, as := range result.Areas {
		if err := check("area", string(as.Area), as.Score); err != nil {
			return err
		}
	}
	for _, cs := range result.Clusters {
		if err := check("cluster", string(cs.Cluster), cs.Score); err != nil {
			return err
		}
	}
	if result.Global != nil {
		if err := check("global", "score", result.Global.Score); err != nil {
			return err
		}
	}
	return nil
}
