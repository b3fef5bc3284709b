package cli

import (
	"encoding/json"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/yanqian/flarecast/internal/domain/auth"
	"github.com/yanqian/flarecast/internal/domain/insight"
)

// Format constants matching --format flag values.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newFieldTable(w io.Writer) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"FIELD", "VALUE"})
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetColWidth(80)
	tw.SetAutoWrapText(true)
	return tw
}

func renderState(w io.Writer, state insight.State, format string) error {
	if format == FormatJSON {
		return renderJSON(w, state)
	}

	tw := newFieldTable(w)
	tw.Append([]string{"Message", state.Message})
	if state.Error != "" {
		tw.Append([]string{"Error", state.Error})
	}
	if r := state.Result; r != nil {
		if r.Risk != nil {
			tw.Append([]string{"Risk", string(*r.Risk)})
		}
		if r.Forecast != nil {
			tw.Append([]string{"Forecast", *r.Forecast})
		}
		if r.Why != nil {
			tw.Append([]string{"Why", *r.Why})
		}
		if r.WeeklyInsight != nil {
			tw.Append([]string{"Weekly", *r.WeeklyInsight})
		}
		factors := make([]string, 0, len(r.StrongestFactors))
		for name := range r.StrongestFactors {
			factors = append(factors, name)
		}
		slices.Sort(factors)
		for _, name := range factors {
			tw.Append([]string{"Factor " + name, strconv.FormatFloat(r.StrongestFactors[name], 'f', 2, 64)})
		}
		for i, c := range r.Citations {
			tw.Append([]string{"Citation " + strconv.Itoa(i+1), c})
		}
	}
	if state.CompletedAt != nil {
		tw.Append([]string{"Completed", state.CompletedAt.Format(time.RFC3339)})
	}
	if state.RequestID != "" {
		tw.Append([]string{"Request", state.RequestID})
	}
	tw.Render()
	return nil
}

func renderFingerprint(w io.Writer, fp insight.Fingerprint, format string) error {
	if format == FormatJSON {
		return renderJSON(w, map[string]string{"fingerprint": string(fp)})
	}
	tw := newFieldTable(w)
	tw.Append([]string{"Fingerprint", string(fp)})
	tw.Render()
	return nil
}

func renderToken(w io.Writer, issued auth.IssuedToken, format string) error {
	if format == FormatJSON {
		return renderJSON(w, issued)
	}
	tw := newFieldTable(w)
	tw.SetAutoWrapText(false)
	tw.Append([]string{"Token", issued.Token})
	tw.Append([]string{"Expires", issued.ExpiresAt.UTC().Format(time.RFC3339)})
	tw.Render()
	return nil
}
