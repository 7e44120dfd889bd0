package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"github.com/woozymasta/lidardsm/internal/points"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
)

const style = `
body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 72rem; color: #222; }
h1 { font-size: 1.6rem; margin-bottom: 0.2rem; }
.meta { color: #666; font-size: 0.9rem; }
table { border-collapse: collapse; margin: 1rem 0; }
th, td { padding: 0.25rem 0.75rem; border-bottom: 1px solid #ddd; text-align: left; }
td.num { text-align: right; font-variant-numeric: tabular-nums; }
.figures { display: flex; flex-wrap: wrap; gap: 1rem; }
.figures figure { margin: 0; }
.figures img { border: 1px solid #ccc; max-width: 100%; }
`

const runPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>{{.Title}}</title>
  <style>{{.CSS}}</style>
</head>
<body>
  {{with .Run}}
  <h1>{{.Title}}</h1>
  <p class="meta">Run {{.ID}} &middot; {{.Started.Format "2006-01-02 15:04:05 MST"}} &middot; {{duration .}}</p>

  <div class="figures">
  {{range .Images}}
    <figure>
      <a href="{{.File}}"><img src="{{or .Thumb .File}}" alt="{{.Title}}"></a>
      <figcaption>{{.Title}} ({{.Width}}&times;{{.Height}})</figcaption>
    </figure>
  {{end}}
  </div>

  <h2>Downloads</h2>
  <ul>
    <li><a href="{{.Raster}}">{{.Raster}}</a> GeoTIFF, {{.NX}}&times;{{.NY}} nodes at {{num .Spacing}} m</li>
    <li><a href="{{.Footprint}}">{{.Footprint}}</a> footprint</li>
    <li><a href="run.json">run.json</a> summary</li>
  </ul>

  <h2>Processing</h2>
  <table>
    <tr><th>CRS</th><td>{{.CRS}}</td></tr>
    <tr><th>Region</th><td>{{.Region}}</td></tr>
    <tr><th>Spacing</th><td>{{.Params.Spacing}}</td></tr>
    <tr><th>Quantile</th><td>{{num .Params.Quantile}}</td></tr>
    <tr><th>Tension</th><td>{{num .Params.Tension}}</td></tr>
    <tr><th>Excluded classes</th><td>{{classes .Params.ExcludeClasses}}</td></tr>
    <tr><th>Points loaded</th><td class="num">{{.Loaded}}</td></tr>
    <tr><th>Points excluded</th><td class="num">{{.Excluded}}</td></tr>
    <tr><th>Occupied cells</th><td class="num">{{.Cells}}</td></tr>
    <tr><th>Elevation range</th><td>{{num .ZMin}} to {{num .ZMax}} m</td></tr>
  </table>

  <h2>Point statistics</h2>
  <table>
    <tr><th></th><th>count</th><th>mean</th><th>std</th><th>min</th><th>25%</th><th>50%</th><th>75%</th><th>max</th></tr>
    {{range $name, $s := columns .}}
    <tr><th>{{$name}}</th><td class="num">{{$s.Count}}</td><td class="num">{{num $s.Mean}}</td><td class="num">{{num $s.Std}}</td><td class="num">{{num $s.Min}}</td><td class="num">{{num $s.P25}}</td><td class="num">{{num $s.P50}}</td><td class="num">{{num $s.P75}}</td><td class="num">{{num $s.Max}}</td></tr>
    {{end}}
  </table>

  <h2>Sources</h2>
  <ul>{{range .Sources}}<li>{{.}}</li>{{end}}</ul>
  {{end}}
</body>
</html>`

const indexPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>{{.Title}}</title>
  <style>{{.CSS}}</style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <table>
    <tr><th>Dataset</th><th>Nodes</th><th>Elevation (m)</th><th>Started</th></tr>
    {{range .Runs}}
    <tr><td><a href="{{.Dataset}}/">{{.Title}}</a></td><td class="num">{{.NX}}&times;{{.NY}}</td><td>{{num .ZMin}} to {{num .ZMax}}</td><td>{{.Started.Format "2006-01-02 15:04"}}</td></tr>
    {{else}}
    <tr><td colspan="4">No runs yet.</td></tr>
    {{end}}
  </table>
</body>
</html>`

var funcs = template.FuncMap{
	"num": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"duration": func(r *Run) string {
		return r.Duration().String()
	},
	"classes": func(cs []int) string {
		parts := make([]string, len(cs))
		for i, c := range cs {
			parts[i] = fmt.Sprint(c)
		}
		return strings.Join(parts, ", ")
	},
	"columns": func(r *Run) map[string]points.Stats {
		return map[string]points.Stats{"x": r.Summary.X, "y": r.Summary.Y, "z": r.Summary.Z}
	},
}

var (
	runTmpl   = template.Must(template.New("run").Funcs(funcs).Parse(runPage))
	indexTmpl = template.Must(template.New("index").Funcs(funcs).Parse(indexPage))
)

func newMinifier() *minify.M {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("text/html", html.Minify)
	return m
}

func render(tmpl *template.Template, data map[string]any) ([]byte, error) {
	m := newMinifier()
	cssMin, err := m.String("text/css", style)
	if err != nil {
		return nil, fmt.Errorf("minify css: %w", err)
	}
	data["CSS"] = template.CSS(cssMin)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute template: %w", err)
	}

	out, err := m.Bytes("text/html", buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("minify html: %w", err)
	}
	return out, nil
}

// HTML renders the page for a single run.
func HTML(run *Run) ([]byte, error) {
	return render(runTmpl, map[string]any{"Title": run.Title, "Run": run})
}

// IndexHTML renders the listing of all runs.
func IndexHTML(title string, runs []*Run) ([]byte, error) {
	return render(indexTmpl, map[string]any{"Title": title, "Runs": runs})
}

// WriteHTML stores the run page as dir/index.html.
func WriteHTML(dir string, run *Run) error {
	page, err := HTML(run)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, IndexFile), page, 0644)
}

// WriteIndex regenerates outputDir/index.html from the runs found there.
func WriteIndex(outputDir, title string) error {
	runs, err := List(outputDir)
	if err != nil {
		return err
	}
	page, err := IndexHTML(title, runs)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, IndexFile), page, 0644)
}
