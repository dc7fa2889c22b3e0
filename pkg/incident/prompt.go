package incident

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/berijalan/incident-scheduler/pkg/signoz"
)

// DefaultTemplate is the report format appended to webhook-triggered prompts
const DefaultTemplate = `
Please produce a concise incident summary following EXACTLY this format
(use 'N/A' when missing):

🚨 ALERT: {Title} 🚨
Service: {service}
🛑 Penyebab Utama: {short cause in Indonesian}
🛠 Analisis Teknis: {technical analysis in Indonesian}
🔥 Impact Level: {color + level and impact}
✅ Action Items:
- {action 1}
- {action 2}
- {action 3}
🔍 Trace ID: {trace id or N/A}

Return ONLY the filled template text.`

// PromptInput feeds BuildPrompt
type PromptInput struct {
	Labels      map[string]string
	Annotations map[string]string
	Alerts      []Alert
	Logs        []signoz.NormalizedLog
	Template    string
}

// BuildPrompt assembles the alert context, the normalized log evidence and
// the report template into one LLM prompt
func BuildPrompt(input PromptInput) string {
	template := input.Template
	if template == "" {
		template = DefaultTemplate
	}

	alertLines := "(none)"
	if len(input.Alerts) > 0 {
		lines := make([]string, 0, len(input.Alerts))
		for _, alert := range input.Alerts {
			lines = append(lines, FormatAlertLine(alert))
		}
		alertLines = strings.Join(lines, "\n")
	}

	header := fmt.Sprintf("Signoz Alert received.\n\nLabels:\n%s\n\nAnnotations:\n%s\n\nAlerts:\n%s\n",
		marshalIndent(input.Labels), marshalIndent(input.Annotations), alertLines)

	logsSection := ""
	if len(input.Logs) > 0 {
		var b strings.Builder
		b.WriteString("\nRecent logs (deduplicated, most recent first):\n")
		for _, entry := range input.Logs {
			b.WriteString(fmt.Sprintf(`
[%s] %s
Service: %s
Cause: %s
Gateway: %s
DB Host: %s
Trace ID: %s
Transaction: %s
`,
				entry.Severity, entry.Message, entry.Service,
				orNA(entry.ErrorMessage), orNA(entry.Gateway), orNA(entry.DBHost),
				orNA(entry.TraceID), orNA(entry.TransactionID)))
			b.WriteString("\n")
		}
		b.WriteString("\nUse the logs above to determine the REAL root cause.\n")
		logsSection = b.String()
	}

	return header + logsSection + "\n" + template + "\n"
}

// ScheduleReportInput feeds BuildScheduleReportTemplate
type ScheduleReportInput struct {
	Start        time.Time
	End          time.Time
	GeneratedAt  time.Time
	ScheduleID   string
	ScheduleName string
	Labels       map[string]string
	ServiceName  string
}

// BuildScheduleReportTemplate renders the scheduled monitoring report
// template with the run's window and context filled in. Timestamps are
// localized to WIB, the reporting timezone of the product.
func BuildScheduleReportTemplate(input ScheduleReportInput) (string, error) {
	if input.End.IsZero() || input.Start.IsZero() || !input.Start.Before(input.End) {
		return "", fmt.Errorf("invalid schedule range for prompt template")
	}

	generatedAt := input.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now()
	}

	scheduleName := input.ScheduleName
	if scheduleName == "" {
		scheduleName = input.Labels["alertname"]
	}
	if scheduleName == "" {
		scheduleName = "Penjadwalan Otomatis"
	}

	serviceName := strings.TrimSpace(input.ServiceName)
	if serviceName == "" {
		serviceName = deriveServiceName(input.Labels)
	}
	if serviceName == "" {
		serviceName = "N/A"
	}

	periodLabel := formatPeriodLabel(input.Start, input.End)
	durationMinutes := int(math.Max(1, math.Round(input.End.Sub(input.Start).Minutes())))

	contextLines := []string{
		"Konteks eksekusi jadwal:",
		"- Nama Jadwal: " + scheduleName,
	}
	if input.ScheduleID != "" {
		contextLines = append(contextLines, "- Schedule ID: "+input.ScheduleID)
	}
	contextLines = append(contextLines,
		"- Periode Deskriptif: "+periodLabel,
		fmt.Sprintf("- Rentang Waktu (WIB): %s s/d %s", formatWIBDate(input.Start), formatWIBDate(input.End)),
		fmt.Sprintf("- Durasi (menit): %d", durationMinutes),
		"- Dijalankan Pada: "+formatWIBDate(generatedAt),
		"- Service Utama: "+serviceName,
	)

	return fmt.Sprintf(`%s

Gunakan data di atas dan log terlampir untuk membuat laporan monitoring terjadwal dalam bahasa Indonesia formal. Gunakan angka aktual bila tersedia dan tulis "N/A" apabila informasi tidak ditemukan. Ikuti format berikut dan isi setiap bagian setelah label-nya:

🚨 Scheduling Report 🚨

🕒 Periode: %s
🗓 Generated At: %s
🔧 Service Name: %s

📊 Ringkasan Log:
{Ringkas jumlah log, distribusi error/warning/info, serta catat lonjakan atau pola berulang dalam maksimal dua kalimat.}

🧠 Hasil Analisis:
{Jelaskan kondisi layanan, penyebab error atau warning, dan apakah ada dampak ke pengguna.}

🔥 Impact Level:
{Gunakan emoji indikator (🟢/🟡/🟠/🔴), tulis level (Informational/Warning/Major/Critical), lalu jelaskan dampaknya.}

✅ Action Items:
1. {Aksi lanjutan 1}
2. {Aksi lanjutan 2}
3. {Aksi lanjutan 3}
...
n. {Aksi lanjutan n}

🔍 Trace ID: {Trace ID paling relevan dari log atau tulis N/A}

Kembalikan hanya teks laporan dengan placeholder yang sudah diganti.`,
		strings.Join(contextLines, "\n"),
		periodLabel, formatWIBDate(generatedAt), serviceName), nil
}

// DeriveServiceName picks a service name from normalized logs, falling back
// to the payload labels
func DeriveServiceName(logs []signoz.NormalizedLog, labels map[string]string) string {
	for _, entry := range logs {
		if entry.Service != "" {
			return entry.Service
		}
	}
	return deriveServiceName(labels)
}

var wibMonths = [...]string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

func wibLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		return time.FixedZone("WIB", 7*3600)
	}
	return loc
}

func formatWIBDate(t time.Time) string {
	local := t.In(wibLocation())
	return fmt.Sprintf("%d %s %d, %02d:%02d WIB",
		local.Day(), wibMonths[local.Month()-1], local.Year(), local.Hour(), local.Minute())
}

func formatPeriodLabel(start, end time.Time) string {
	diff := end.Sub(start)
	switch {
	case diff < time.Hour:
		return fmt.Sprintf("%d Menit Terakhir", atLeastOne(diff.Round(time.Minute)/time.Minute))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%d Jam Terakhir", atLeastOne(diff.Round(time.Hour)/time.Hour))
	case diff < 30*24*time.Hour:
		return fmt.Sprintf("%d Hari Terakhir", atLeastOne(diff.Round(24*time.Hour)/(24*time.Hour)))
	default:
		return fmt.Sprintf("%d Bulan Terakhir", atLeastOne(diff.Round(30*24*time.Hour)/(30*24*time.Hour)))
	}
}

func atLeastOne(v time.Duration) int {
	if v < 1 {
		return 1
	}
	return int(v)
}

func deriveServiceName(labels map[string]string) string {
	for _, key := range []string{"service.name", "service", "serviceName", "k8s.service.name", "deployment", "app"} {
		if labels[key] != "" {
			return labels[key]
		}
	}
	return ""
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func marshalIndent(m map[string]string) string {
	if m == nil {
		m = map[string]string{}
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(raw)
}
