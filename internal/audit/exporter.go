// Package audit renders a subject's approval chain as an XLSX workbook
package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/garyjia/transfer-approval/internal/domain/entity"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// ErrNoChain is returned when the subject has no workflow instances
var ErrNoChain = errors.New("subject has no approval chain")

const (
	sheetSummary   = "Summary"
	sheetInstances = "Instances"
	sheetDecisions = "Decisions"
	timeLayout     = "2006-01-02 15:04:05"
)

// ChainReader is the read side the exporter needs
type ChainReader interface {
	GetChain(ctx context.Context, subject entity.SubjectID) (*entity.ChainHandle, error)
	GetDecisions(ctx context.Context, subject entity.SubjectID) ([]*entity.StageAssignment, error)
}

// Exporter writes audit workbooks
type Exporter struct {
	reader ChainReader
	now    func() time.Time
	logger *zap.Logger
}

// NewExporter creates a new audit exporter
func NewExporter(reader ChainReader, logger *zap.Logger) *Exporter {
	return &Exporter{
		reader: reader,
		now:    time.Now,
		logger: logger,
	}
}

// Export writes the workbook for subject to w
func (x *Exporter) Export(ctx context.Context, subject entity.SubjectID, w io.Writer) error {
	chain, err := x.reader.GetChain(ctx, subject)
	if err != nil {
		return fmt.Errorf("failed to load chain: %w", err)
	}
	if len(chain.Instances) == 0 {
		return ErrNoChain
	}

	decisions, err := x.reader.GetDecisions(ctx, subject)
	if err != nil {
		return fmt.Errorf("failed to load decisions: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{sheetInstances, sheetDecisions} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	summary := [][]interface{}{
		{"Subject", chain.SubjectID.String()},
		{"Group", chain.GroupID.String()},
		{"Chain Status", string(chain.Status)},
		{"Workflows", len(chain.Instances)},
		{"Exported At", x.now().UTC().Format(timeLayout)},
	}
	if err := writeRows(f, sheetSummary, summary); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetSummary, "A1", fmt.Sprintf("A%d", len(summary)), header); err != nil {
		return fmt.Errorf("failed to style summary: %w", err)
	}

	instanceRows := [][]interface{}{{
		"Order", "Instance ID", "Template ID", "Status", "Current Stage", "Stage Count", "Stalled", "Started At", "Finished At",
	}}
	for _, inst := range chain.Instances {
		instanceRows = append(instanceRows, []interface{}{
			inst.ExecutionOrder,
			inst.ID,
			inst.TemplateID,
			inst.Status,
			inst.CurrentPosition(),
			inst.StageCount,
			inst.Stalled,
			formatTime(inst.StartedAt),
			formatTime(inst.FinishedAt),
		})
	}
	if err := writeTable(f, sheetInstances, instanceRows, header); err != nil {
		return err
	}

	decisionRows := [][]interface{}{{"Instance ID", "Stage", "User", "Decision", "Decided At"}}
	for _, row := range decisions {
		decisionRows = append(decisionRows, []interface{}{
			row.InstanceID,
			row.StagePosition,
			row.UserID.String(),
			row.Decision,
			formatTime(row.DecidedAt),
		})
	}
	if err := writeTable(f, sheetDecisions, decisionRows, header); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	x.logger.Info("Audit workbook exported",
		zap.String("subject_id", subject.String()),
		zap.Int("instances", len(chain.Instances)),
		zap.Int("decisions", len(decisions)))
	return nil
}

func writeTable(f *excelize.File, sheet string, rows [][]interface{}, headerStyle int) error {
	if err := writeRows(f, sheet, rows); err != nil {
		return err
	}

	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return fmt.Errorf("failed to compute header range: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to style %s header: %w", sheet, err)
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("failed to compute cell name: %w", err)
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
