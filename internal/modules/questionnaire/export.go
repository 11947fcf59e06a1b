package questionnaire

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/events"
)

// ErrInvalidFormat is returned when an export request asks for a format other
// than csv, pdf or both.
var ErrInvalidFormat = errors.New("format must be one of: csv, pdf, both")

// itemFieldOrder is the fixed column order for scalar item fields in exports.
var itemFieldOrder = []string{"value_cents", "window_start", "window_end", "method"}

// ExportRequest describes a pack export. Redact defaults to true, which
// replaces payee names and drops memos before hashing and rendering.
type ExportRequest struct {
	Pack   string `json:"pack"`
	Period string `json:"period"`
	Format string `json:"format"`
	Redact *bool  `json:"redact"`
}

// ExportResult is returned to the caller with the integrity hash and the URLs
// of the written files.
type ExportResult struct {
	Pack        string `json:"pack"`
	Period      string `json:"period"`
	Hash        string `json:"hash"`
	GeneratedAt string `json:"generated_at"`
	CSVURL      string `json:"csv_url,omitempty"`
	PDFURL      string `json:"pdf_url,omitempty"`
}

// Exporter renders assembled packs to CSV and printable HTML files on disk.
type Exporter struct {
	service   *Service
	exportDir string
	events    *events.Manager
	log       zerolog.Logger
}

// NewExporter creates an exporter writing into exportDir.
func NewExporter(service *Service, exportDir string, eventManager *events.Manager, log zerolog.Logger) *Exporter {
	return &Exporter{
		service:   service,
		exportDir: exportDir,
		events:    eventManager,
		log:       log.With().Str("service", "questionnaire_export").Logger(),
	}
}

// Export assembles the requested pack, optionally redacts it, hashes the
// stable serialization together with the generation timestamp and writes the
// requested file formats. Identical data and timestamp always produce the
// same hash.
func (e *Exporter) Export(req ExportRequest, asOf time.Time) (*ExportResult, error) {
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "pdf" && format != "both" {
		return nil, ErrInvalidFormat
	}

	pack, err := e.service.AssemblePack(req.Pack, req.Period, asOf)
	if err != nil {
		return nil, err
	}

	canonical, err := canonicalPack(pack)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize pack: %w", err)
	}
	if req.Redact == nil || *req.Redact {
		canonical = redactValue(canonical).(map[string]interface{})
	}

	stable, err := json.Marshal(canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize pack: %w", err)
	}
	generatedAt := asOf.UTC().Truncate(time.Second).Format(time.RFC3339)
	hash := computeExportHash(stable, generatedAt)

	if err := os.MkdirAll(e.exportDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	base := fmt.Sprintf("%s_%s_%s", pack.Pack, compactTimestamp(generatedAt), hash[:8])
	result := &ExportResult{
		Pack:        pack.Pack,
		Period:      pack.Period,
		Hash:        hash,
		GeneratedAt: generatedAt,
	}

	if format == "csv" || format == "both" {
		name := base + ".csv"
		data, err := renderCSV(canonical, hash, generatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to render csv export: %w", err)
		}
		if err := os.WriteFile(filepath.Join(e.exportDir, name), data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write csv export: %w", err)
		}
		result.CSVURL = "/exports/" + name
		e.emitCreated(pack.Pack, "csv", name, hash)
	}

	if format == "pdf" || format == "both" {
		name := base + ".pdf"
		doc := renderPDFHTML(canonical, hash, generatedAt)
		if err := os.WriteFile(filepath.Join(e.exportDir, name), []byte(doc), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write pdf export: %w", err)
		}
		result.PDFURL = "/exports/" + name
		e.emitCreated(pack.Pack, "pdf", name, hash)
	}

	e.log.Info().
		Str("pack", pack.Pack).
		Str("format", format).
		Str("hash", hash[:8]).
		Msg("Questionnaire pack exported")

	return result, nil
}

func (e *Exporter) emitCreated(pack, format, filename, hash string) {
	if e.events == nil {
		return
	}
	e.events.EmitTyped("questionnaire", &events.ExportCreatedData{
		Pack:     pack,
		Format:   format,
		Filename: filename,
		Hash:     hash,
	})
}

// canonicalPack round-trips the pack through JSON so hashing and rendering
// operate on the exact wire representation with sorted keys.
func canonicalPack(pack *Pack) (map[string]interface{}, error) {
	raw, err := json.Marshal(pack)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// redactValue walks the decoded pack and masks PII fields. Payee names become
// "REDACTED" and memos are nulled out wherever they appear.
func redactValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			switch k {
			case "payee", "payee_name":
				out[k] = "REDACTED"
			case "memo":
				out[k] = nil
			default:
				out[k] = redactValue(val)
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = redactValue(val)
		}
		return out
	default:
		return v
	}
}

func computeExportHash(stableJSON []byte, generatedAt string) string {
	h := sha256.New()
	h.Write(stableJSON)
	h.Write([]byte("|"))
	h.Write([]byte(generatedAt))
	return hex.EncodeToString(h.Sum(nil))
}

// compactTimestamp strips separators from an RFC3339 stamp so it is safe in
// filenames.
func compactTimestamp(ts string) string {
	return strings.NewReplacer(":", "", "-", "").Replace(ts)
}

func renderCSV(pack map[string]interface{}, hashHex, generatedAt string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	_ = w.Write([]string{"Pack", stringValue(pack["pack"]), "Period", stringValue(pack["period"])})
	for _, rawSection := range listValue(pack["sections"]) {
		section, ok := rawSection.(map[string]interface{})
		if !ok {
			continue
		}
		_ = w.Write([]string{})
		_ = w.Write([]string{"Section", stringValue(section["id"]), stringValue(section["title"])})
		for _, rawItem := range listValue(section["items"]) {
			item, ok := rawItem.(map[string]interface{})
			if !ok {
				continue
			}
			label := itemLabel(item)
			for _, key := range itemFieldOrder {
				if v, present := item[key]; present {
					_ = w.Write([]string{"Item", label, key, stringValue(v)})
				}
			}
			writeCSVRows(w, item["rows"])
		}
	}
	_ = w.Write([]string{})
	_ = w.Write([]string{"Hash", hashHex})
	_ = w.Write([]string{"Generated At", generatedAt})

	w.Flush()
	return buf.Bytes(), w.Error()
}

func writeCSVRows(w *csv.Writer, raw interface{}) {
	rows := listValue(raw)
	if len(rows) == 0 {
		return
	}
	headers := rowHeaders(rows)
	_ = w.Write(append([]string{"Rows"}, headers...))
	for _, rawRow := range rows {
		row, ok := rawRow.(map[string]interface{})
		if !ok {
			continue
		}
		record := make([]string, 0, len(headers)+1)
		record = append(record, "")
		for _, h := range headers {
			record = append(record, stringValue(row[h]))
		}
		_ = w.Write(record)
	}
}

func renderPDFHTML(pack map[string]interface{}, hashHex, generatedAt string) string {
	var b strings.Builder
	b.WriteString("<html><head><meta charset='utf-8'><title>Questionnaire Export</title>")
	b.WriteString("<style>body{font-family:Arial,Helvetica,sans-serif;margin:24px}h1{margin:0 0 4px}h2{margin:18px 0 6px}table{border-collapse:collapse;width:100%}th,td{border:1px solid #ddd;padding:6px;text-align:left}.muted{color:#777;font-size:12px}</style>")
	b.WriteString("</head><body>")
	fmt.Fprintf(&b, "<h1>Pack: %s</h1>", escapeValue(pack["pack"]))
	fmt.Fprintf(&b, "<div class='muted'>Period: %s</div>", escapeValue(pack["period"]))

	for _, rawSection := range listValue(pack["sections"]) {
		section, ok := rawSection.(map[string]interface{})
		if !ok {
			continue
		}
		title := stringValue(section["title"])
		if title == "" {
			title = stringValue(section["id"])
		}
		fmt.Fprintf(&b, "<h2>%s</h2>", html.EscapeString(title))
		for _, rawItem := range listValue(section["items"]) {
			item, ok := rawItem.(map[string]interface{})
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "<div><strong>%s</strong></div>", html.EscapeString(itemLabel(item)))
			b.WriteString("<table><tbody>")
			for _, key := range itemFieldOrder {
				if v, present := item[key]; present {
					fmt.Fprintf(&b, "<tr><th>%s</th><td>%s</td></tr>", key, escapeValue(v))
				}
			}
			b.WriteString("</tbody></table>")
			renderHTMLRows(&b, item["rows"])
		}
	}

	b.WriteString("<hr>")
	fmt.Fprintf(&b, "<div class='muted'>Hash: %s</div>", hashHex)
	fmt.Fprintf(&b, "<div class='muted'>Generated At: %s</div>", html.EscapeString(generatedAt))
	b.WriteString("</body></html>")
	return b.String()
}

func renderHTMLRows(b *strings.Builder, raw interface{}) {
	rows := listValue(raw)
	if len(rows) == 0 {
		return
	}
	headers := rowHeaders(rows)
	b.WriteString("<table><thead><tr>")
	for _, h := range headers {
		fmt.Fprintf(b, "<th>%s</th>", html.EscapeString(h))
	}
	b.WriteString("</tr></thead><tbody>")
	for _, rawRow := range rows {
		row, ok := rawRow.(map[string]interface{})
		if !ok {
			continue
		}
		b.WriteString("<tr>")
		for _, h := range headers {
			fmt.Fprintf(b, "<td>%s</td>", escapeValue(row[h]))
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table>")
}

func itemLabel(item map[string]interface{}) string {
	if s, _ := item["label"].(string); s != "" {
		return s
	}
	if s, _ := item["method"].(string); s != "" {
		return s
	}
	return "item"
}

// rowHeaders is the sorted union of keys across all row objects, so every row
// renders against the same columns.
func rowHeaders(rows []interface{}) []string {
	seen := make(map[string]struct{})
	for _, raw := range rows {
		if row, ok := raw.(map[string]interface{}); ok {
			for k := range row {
				seen[k] = struct{}{}
			}
		}
	}
	headers := make([]string, 0, len(seen))
	for k := range seen {
		headers = append(headers, k)
	}
	sort.Strings(headers)
	return headers
}

func listValue(v interface{}) []interface{} {
	list, _ := v.([]interface{})
	return list
}

func stringValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func escapeValue(v interface{}) string {
	return html.EscapeString(stringValue(v))
}
