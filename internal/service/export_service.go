package service

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Issues"

var exportHeaders = []any{
	"Code", "Issue", "Type", "Workflow status", "Visibility", "Priority",
	"Created by", "Assigned to", "Property", "Created on", "Updated at",
}

// IssueExportService renders issue listings as XLSX workbooks.
type IssueExportService struct {
	query *IssueQueryService
}

// NewIssueExportService constructs the service.
func NewIssueExportService(query *IssueQueryService) *IssueExportService {
	return &IssueExportService{query: query}
}

// Export writes every issue matching q to w, ignoring q's paging.
func (s *IssueExportService) Export(ctx context.Context, q IssueQuery, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeaders); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(exportHeaders), 1)
	if err := f.SetCellStyle(exportSheet, "A1", lastHeader, style); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	q.Page = 1
	q.Limit = s.query.cfg.MaxPageSize
	rowNum := 2
	for {
		page, err := s.query.ListIssues(ctx, q)
		if err != nil {
			return err
		}
		for _, issue := range page.Issues {
			row := []any{
				issue.IssueCode,
				issue.Issue,
				string(issue.Type),
				string(issue.IssueStatus),
				string(issue.Status),
				string(issue.Priority),
				issue.CreatedByID,
				optionalID(issue.AssignedToID),
				optionalID(issue.PropertyID),
				issue.CreatedOn.UTC().Format(time.RFC3339),
				issue.UpdatedAt.UTC().Format(time.RFC3339),
			}
			cell, _ := excelize.CoordinatesToCellName(1, rowNum)
			if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
				return fmt.Errorf("write row %d: %w", rowNum, err)
			}
			rowNum++
		}
		if !page.Pagination.HasNext {
			break
		}
		q.Page++
	}

	_ = f.SetColWidth(exportSheet, "A", "A", 12)
	_ = f.SetColWidth(exportSheet, "B", "B", 40)
	_ = f.SetColWidth(exportSheet, "C", "F", 16)
	_ = f.SetColWidth(exportSheet, "J", "K", 22)

	return f.Write(w)
}

func optionalID(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}
