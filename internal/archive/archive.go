// Package archive keeps copies of finished analyses in object storage.
package archive

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
)

var ErrNotFound = errors.New("archive: object not found")

const (
	reportPrefix    = "reports"
	finalReportMD   = "final_report.md"
	analysisJSON    = "analysis.json"
	contentTypeMD   = "text/markdown; charset=utf-8"
	contentTypeJSON = "application/json"
)

// Backend stores opaque objects under keys.
type Backend interface {
	Put(ctx context.Context, key string, content []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Archive writes one folder per report: reports/<id>/final_report.md and
// reports/<id>/analysis.json.
type Archive struct {
	b Backend
}

func New(b Backend) *Archive { return &Archive{b: b} }

// Save stores the final report and the encoded result, and returns the
// folder key.
func (a *Archive) Save(ctx context.Context, reportID, finalReport string, result []byte) (string, error) {
	reportID = strings.TrimSpace(reportID)
	if reportID == "" {
		return "", eris.New("archive: report id is required")
	}
	folder := Folder(reportID)
	if err := a.b.Put(ctx, folder+"/"+finalReportMD, []byte(finalReport), contentTypeMD); err != nil {
		return "", eris.Wrapf(err, "archive final report %s", reportID)
	}
	if len(result) > 0 {
		if err := a.b.Put(ctx, folder+"/"+analysisJSON, result, contentTypeJSON); err != nil {
			return "", eris.Wrapf(err, "archive analysis %s", reportID)
		}
	}
	return folder, nil
}

// FinalReport reads back the archived report text.
func (a *Archive) FinalReport(ctx context.Context, reportID string) (string, error) {
	raw, err := a.b.Get(ctx, Folder(reportID)+"/"+finalReportMD)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Files lists the object names stored for a report.
func (a *Archive) Files(ctx context.Context, reportID string) ([]string, error) {
	return a.b.List(ctx, Folder(reportID)+"/")
}

// Folder returns the key prefix used for a report.
func Folder(reportID string) string {
	return reportPrefix + "/" + strings.Trim(strings.TrimSpace(reportID), "/")
}
