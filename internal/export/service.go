package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/photon-decode/internal/entity"
	"github.com/joseph-ayodele/photon-decode/internal/repository"
)

const sheet = "Submissions"

// Service produces XLSX workbooks of stored submissions.
type Service struct {
	repo   repository.SubmissionRepository
	logger *slog.Logger
}

func NewService(repo repository.SubmissionRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Window restricts an export to submissions created on days in [From, To], both inclusive.
// If only From is set -> From..today. If only To is set -> beginning..To.
type Window struct {
	From *time.Time
	To   *time.Time
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (w Window) normalize(now time.Time) (from, to *time.Time) {
	if w.From != nil {
		f := dateOnly(*w.From)
		from = &f
	}
	if w.To != nil {
		t := dateOnly(*w.To)
		to = &t
	}
	if from != nil && to == nil {
		t := dateOnly(now)
		to = &t
	}
	return from, to
}

func (w Window) contains(from, to *time.Time, created time.Time) bool {
	day := dateOnly(created)
	if from != nil && day.Before(*from) {
		return false
	}
	if to != nil && day.After(*to) {
		return false
	}
	return true
}

// ExportSubmissionsXLSX returns a workbook (as bytes), most recent first.
func (s *Service) ExportSubmissionsXLSX(ctx context.Context, w Window) ([]byte, error) {
	start := time.Now()
	from, to := w.normalize(start)

	var rows []*entity.Submission
	for page := 1; ; page++ {
		p, err := s.repo.List(ctx, page, repository.MaxPageLimit)
		if err != nil {
			return nil, fmt.Errorf("query submissions: %w", err)
		}
		for _, sub := range p.Submissions {
			if w.contains(from, to, sub.CreatedAt) {
				rows = append(rows, sub)
			}
		}
		if page >= p.TotalPages || len(p.Submissions) == 0 {
			break
		}
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	_ = f.DeleteSheet("Sheet1")

	headers := []string{
		"Submission ID",
		"Created At",
		"Status",
		"Extracted Text",
		"Quality",
		"Approach",
		"Confidence",
		"Dimensions",
		"Thumbnail URL",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, sub := range rows {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, sub.ID.String())
		write(2, sub.CreatedAt.UTC().Format(time.RFC3339))
		write(3, string(sub.Status))
		write(4, truncate(deref(sub.ExtractedText), 500))
		if sub.Quality != nil {
			write(5, string(*sub.Quality))
		} else {
			write(5, "")
		}
		write(6, sub.Approach)
		if sub.ExtractionSuccess {
			write(7, float64(sub.Confidence))
		} else {
			write(7, "")
		}
		write(8, fmt.Sprintf("%dx%d", sub.Width, sub.Height))
		write(9, deref(sub.ThumbnailURL))
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 38) // id
	_ = f.SetColWidth(sheet, "B", "B", 22) // created
	_ = f.SetColWidth(sheet, "C", "C", 12) // status
	_ = f.SetColWidth(sheet, "D", "D", 48) // text
	_ = f.SetColWidth(sheet, "E", "H", 14)
	_ = f.SetColWidth(sheet, "I", "I", 60) // thumbnail

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
