package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"mmsol/lib/model"
)

var (
	colorGreen  = lipgloss.Color("#10b981")
	colorYellow = lipgloss.Color("#f59e0b")
	colorRed    = lipgloss.Color("#ef4444")
	colorGray   = lipgloss.Color("#6b7280")
	colorBlue   = lipgloss.Color("#3b82f6")
)

var (
	styleOK     = lipgloss.NewStyle().Foreground(colorGreen)
	styleWarn   = lipgloss.NewStyle().Foreground(colorYellow)
	styleError  = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	styleDim    = lipgloss.NewStyle().Foreground(colorGray)
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
)

// renderTable 表头高亮，不画外框
func renderTable(headers []string, rows [][]string) string {
	t := ltable.New().
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return styleHeader.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		BorderStyle(styleDim).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(true).
		BorderColumn(false)
	return t.Render()
}

func printYAML(w io.Writer, v any) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// printSummary 输出批次统计和按错误分类的失败数量
func printSummary[R model.Outcome](w io.Writer, report model.BatchReport[R]) {
	line := fmt.Sprintf("批次 %s: 共 %d 条, 成功 %d, 失败 %d",
		report.ID, len(report.Results), report.Succeeded, report.Failed)
	if !report.HasFailures() {
		fmt.Fprintln(w, styleOK.Render(line))
		return
	}
	fmt.Fprintln(w, styleWarn.Render(line))

	byKind := report.FailuresByKind()
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s=%d", k, byKind[model.ErrorKind(k)])
	}
	fmt.Fprintln(w, styleDim.Render("  "+strings.Join(parts, " ")))
}

// reportErr 有失败记录时返回 errPartialFailure
func reportErr[R model.Outcome](report model.BatchReport[R]) error {
	if report.HasFailures() {
		return errPartialFailure
	}
	return nil
}

func errorCell(err error) string {
	if err == nil {
		return ""
	}
	return styleError.Render(string(model.KindOf(err))) + " " + err.Error()
}
