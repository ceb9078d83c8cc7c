// Package report renders a run summary as markdown and HTML
package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"proteodiff/domain/abundance"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"gonum.org/v1/gonum/stat"
)

// Options controls report content
type Options struct {
	Title string
	TopN  int
	HTML  bool
}

// DefaultOptions lists the top 20 features
func DefaultOptions() Options {
	return Options{Title: "Differential abundance", TopN: 20}
}

// Distribution summarizes tested log fold changes
type Distribution struct {
	N      int
	Mean   float64
	StdDev float64
	Q1     float64
	Median float64
	Q3     float64
}

// LogFCDistribution computes moments and quartiles over tested features
func LogFCDistribution(table *abundance.ResultTable) Distribution {
	var xs []float64
	for _, r := range table.Results {
		if r.Tested && !math.IsNaN(r.LogFC) && !math.IsInf(r.LogFC, 0) {
			xs = append(xs, r.LogFC)
		}
	}
	d := Distribution{N: len(xs)}
	if d.N == 0 {
		d.Mean, d.StdDev, d.Q1, d.Median, d.Q3 = math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return d
	}
	sort.Float64s(xs)
	d.Mean, d.StdDev = stat.MeanStdDev(xs, nil)
	d.Q1 = stat.Quantile(0.25, stat.Empirical, xs, nil)
	d.Median = stat.Quantile(0.5, stat.Empirical, xs, nil)
	d.Q3 = stat.Quantile(0.75, stat.Empirical, xs, nil)
	return d
}

// Markdown renders the summary document
func Markdown(table *abundance.ResultTable, opts Options) []byte {
	var b strings.Builder
	s := table.Settings
	sum := table.Summarize()

	fmt.Fprintf(&b, "# %s: %s vs %s\n\n", opts.Title, s.Numerator, s.Denominator)

	b.WriteString("## Run\n\n")
	b.WriteString("| Setting | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Run | `%s` |\n", table.RunID)
	fmt.Fprintf(&b, "| Fingerprint | `%s` |\n", table.Fingerprint.Short())
	fmt.Fprintf(&b, "| Created | %s |\n", table.CreatedAt)
	fmt.Fprintf(&b, "| Fit | %s |\n", s.FitMode)
	fmt.Fprintf(&b, "| Intercept | %t |\n", s.Intercept)
	fmt.Fprintf(&b, "| logFC threshold | %g |\n", s.FCThreshold)
	fmt.Fprintf(&b, "| Alpha (BH) | %g |\n", s.Alpha)
	fmt.Fprintf(&b, "| Prior df | %s |\n", num(table.Prior.D0))
	fmt.Fprintf(&b, "| Prior variance | %s |\n\n", num(table.Prior.S02))

	if len(table.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range table.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Summary\n\n")
	b.WriteString("| Features | Tested | Untestable | Increased | Decreased |\n|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d |\n\n", sum.Total, sum.Tested, sum.Untestable, sum.Increased, sum.Decreased)

	d := LogFCDistribution(table)
	if d.N > 0 {
		b.WriteString("## logFC distribution\n\n")
		b.WriteString("| Mean | SD | Q1 | Median | Q3 |\n|---|---|---|---|---|\n")
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n\n", num(d.Mean), num(d.StdDev), num(d.Q1), num(d.Median), num(d.Q3))
	}

	top := TopFeatures(table, opts.TopN)
	if len(top) > 0 {
		fmt.Fprintf(&b, "## Top %d features\n\n", len(top))
		b.WriteString("| Feature | logFC | AveExpr | moderated t | P.Value | adj.P.Val | Status |\n|---|---|---|---|---|---|---|\n")
		for _, r := range top {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
				escape(r.FeatureID), num(r.LogFC), num(r.AveExpr), num(r.ModeratedT),
				num(r.PValue), num(r.AdjPValue), r.Status)
		}
	}
	return []byte(b.String())
}

// Write renders the report as markdown, or as a complete HTML page when
// opts.HTML is set
func Write(w io.Writer, table *abundance.ResultTable, opts Options) error {
	md := Markdown(table, opts)
	if opts.HTML {
		md = ToHTML(md, opts.Title)
	}
	_, err := w.Write(md)
	return err
}

// ToHTML converts markdown with table support into a standalone page
func ToHTML(md []byte, title string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	r := html.NewRenderer(html.RendererOptions{
		Title: title,
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.ToHTML(md, p, r)
}

// TopFeatures returns tested features ordered by adjusted p-value, ties
// broken by larger |logFC|
func TopFeatures(table *abundance.ResultTable, n int) []abundance.Result {
	var tested []abundance.Result
	for _, r := range table.Results {
		if r.Tested {
			tested = append(tested, r)
		}
	}
	sort.SliceStable(tested, func(i, j int) bool {
		a, b := tested[i], tested[j]
		if a.AdjPValue != b.AdjPValue {
			return a.AdjPValue < b.AdjPValue
		}
		return math.Abs(a.LogFC) > math.Abs(b.LogFC)
	})
	if n > 0 && len(tested) > n {
		tested = tested[:n]
	}
	return tested
}

func num(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return fmt.Sprintf("%.4g", v)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
