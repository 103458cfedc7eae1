package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/qs3c/site_compare_server/internal/orchestrator"
)

// printer 把事件流打印到终端
type printer struct {
	w       io.Writer
	verbose bool
}

func (p *printer) Emit(e orchestrator.Event) error {
	var err error
	switch d := e.Payload.(type) {
	case orchestrator.InitPayload:
		_, err = fmt.Fprintf(p.w, "Analyzing %d site(s)\n", d.Total)
	case orchestrator.StartURLPayload:
		_, err = fmt.Fprintf(p.w, "\n[%d] %s (%.0f%%)\n", d.Index, d.URL, d.Percent)
	case orchestrator.ProgressPayload:
		_, err = fmt.Fprintf(p.w, "  %-10s %d/%d  %5.1f%%\n", d.Phase, d.P, d.Of, d.Percent)
	case orchestrator.DebugPayload:
		if p.verbose {
			_, err = fmt.Fprintf(p.w, "  debug: %s\n", d.Message)
		}
	case orchestrator.ResultPayload:
		err = p.result(d)
	case orchestrator.DonePayload:
		state := "done"
		if d.Cancelled {
			state = "cancelled"
		}
		_, err = fmt.Fprintf(p.w, "\n%s: %d succeeded, %d failed\n", state, d.Succeeded, d.Failed)
	}
	return err
}

func (p *printer) result(d orchestrator.ResultPayload) error {
	var b strings.Builder
	fmt.Fprintf(&b, "  result for %s\n", d.URL)
	if d.Error != "" {
		fmt.Fprintf(&b, "    Analysis Failed: %s\n", d.Reason)
	} else if d.Data != nil {
		for _, f := range d.Data.Fields() {
			fmt.Fprintf(&b, "    %-28s %s\n", f.Name, f.Value.String())
		}
	}
	_, err := io.WriteString(p.w, b.String())
	return err
}
