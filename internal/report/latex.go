package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/banshee-data/vaxsim/internal/analysis"
)

var latexEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`&`, `\&`,
	`%`, `\%`,
	`$`, `\$`,
	`#`, `\#`,
	`_`, `\_`,
	`{`, `\{`,
	`}`, `\}`,
	`~`, `\textasciitilde{}`,
	`^`, `\textasciicircum{}`,
)

// WriteScenarioLaTeX writes the scenario comparison as a booktabs table.
func WriteScenarioLaTeX(w io.Writer, results []analysis.ScenarioResult) error {
	var b strings.Builder
	b.WriteString("\\begin{table}[ht]\n\\centering\n")
	b.WriteString("\\begin{tabular}{lrrrlrrr}\n\\toprule\n")
	headers := ScenarioHeaders()
	for i, h := range headers {
		headers[i] = latexEscaper.Replace(h)
	}
	b.WriteString(strings.Join(headers, " & "))
	b.WriteString(" \\\\\n\\midrule\n")
	for _, r := range results {
		row := scenarioRow(r)
		for i, c := range row {
			row[i] = latexEscaper.Replace(c)
		}
		b.WriteString(strings.Join(row, " & "))
		b.WriteString(" \\\\\n")
	}
	b.WriteString("\\bottomrule\n\\end{tabular}\n")
	b.WriteString("\\caption{Vaccination scenario comparison}\n\\label{tab:scenarios}\n\\end{table}\n")
	_, err := fmt.Fprint(w, b.String())
	return err
}
