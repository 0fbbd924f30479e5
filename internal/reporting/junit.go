// internal/reporting/junit.go
package reporting

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"

	"github.com/xkilldash9x/widgetpilot/api/schemas"
)

// JUnitReporter writes the run report as JUnit XML, one testcase per scenario.
type JUnitReporter struct {
	mu     sync.Mutex
	writer io.WriteCloser
}

func NewJUnitReporter(w io.WriteCloser) *JUnitReporter {
	return &JUnitReporter{writer: w}
}

func (r *JUnitReporter) Write(report *schemas.RunReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc := BuildJUnit(report)
	if _, err := doc.WriteTo(r.writer); err != nil {
		return fmt.Errorf("failed to write junit report: %w", err)
	}
	return nil
}

func (r *JUnitReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer.Close()
}

func seconds(ms int64) string {
	return fmt.Sprintf("%.3f", float64(ms)/1000)
}

// BuildJUnit renders report as a JUnit document.
func BuildJUnit(report *schemas.RunReport) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	name := toolOrDefault(report.Tool)
	total := seconds(report.Duration().Milliseconds())

	suites := doc.CreateElement("testsuites")
	suites.CreateAttr("name", name)
	suites.CreateAttr("tests", fmt.Sprint(report.Summary.Total))
	suites.CreateAttr("failures", fmt.Sprint(report.Summary.Failed))
	suites.CreateAttr("skipped", fmt.Sprint(report.Summary.Skipped))
	suites.CreateAttr("time", total)

	suite := suites.CreateElement("testsuite")
	suite.CreateAttr("name", name)
	suite.CreateAttr("tests", fmt.Sprint(report.Summary.Total))
	suite.CreateAttr("failures", fmt.Sprint(report.Summary.Failed))
	suite.CreateAttr("errors", "0")
	suite.CreateAttr("skipped", fmt.Sprint(report.Summary.Skipped))
	suite.CreateAttr("time", total)
	suite.CreateAttr("timestamp", report.StartedAt.UTC().Format(time.RFC3339))

	props := suite.CreateElement("properties")
	for _, kv := range [][2]string{
		{"run_id", report.RunID},
		{"version", report.Version},
		{"driver", report.Driver},
		{"target_url", report.TargetURL},
	} {
		p := props.CreateElement("property")
		p.CreateAttr("name", kv[0])
		p.CreateAttr("value", kv[1])
	}

	for _, res := range report.Results {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("name", res.Name)
		tc.CreateAttr("classname", name)
		tc.CreateAttr("time", seconds(res.DurationMS))

		switch res.Status {
		case schemas.StatusFailed:
			f := tc.CreateElement("failure")
			f.CreateAttr("type", res.FailureKind)
			f.CreateAttr("message", failureMessage(res))
			f.SetText(failureDetail(res))
		case schemas.StatusSkipped:
			s := tc.CreateElement("skipped")
			s.CreateAttr("message", res.Error)
		}

		if out := systemOut(res); out != "" {
			tc.CreateElement("system-out").SetText(out)
		}
	}

	doc.Indent(2)
	return doc
}

func failureMessage(res schemas.ScenarioResult) string {
	if res.Error != "" {
		return res.Error
	}
	if len(res.Assertions) > 0 {
		return res.Assertions[0]
	}
	return "scenario failed"
}

func failureDetail(res schemas.ScenarioResult) string {
	var b strings.Builder
	for _, a := range res.Assertions {
		b.WriteString(a)
		b.WriteString("\n")
	}
	for _, a := range res.Attempts {
		fmt.Fprintf(&b, "attempt %s (%s): %s, %d matches", a.Strategy, a.Action, a.Outcome, a.Matches)
		if a.Error != "" {
			b.WriteString(": " + a.Error)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func systemOut(res schemas.ScenarioResult) string {
	var lines []string
	if res.Tries > 1 {
		lines = append(lines, fmt.Sprintf("tries: %d", res.Tries))
	}
	if res.Degraded {
		lines = append(lines, "degraded: clipboard unavailable")
	}
	lines = append(lines, res.Notes...)
	if res.Artifact != "" {
		lines = append(lines, "artifact: "+res.Artifact)
	}
	return strings.Join(lines, "\n")
}
