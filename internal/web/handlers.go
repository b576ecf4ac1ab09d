package web

import (
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/minqt/weight-sync/internal/status"
	"github.com/minqt/weight-sync/internal/storage"
)

const dashboardTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>weight-sync</title>
<style>
body { font-family: sans-serif; margin: 2rem; color: #222; }
table { border-collapse: collapse; margin-top: 1rem; }
th, td { border: 1px solid #ccc; padding: 0.4rem 0.8rem; text-align: right; }
th { background: #f5f5f5; }
.status-success { color: #2a7a2a; }
.status-failed { color: #b02a2a; }
</style>
</head>
<body>
<h1>weight-sync</h1>
<p>
Running: <strong>{{.Status.IsRunning}}</strong> |
Last run: {{.Status.LastRunTime}} |
Next run: {{.Status.NextRunTime}} |
Last status: <span class="status-{{.Status.LastStatus}}">{{.Status.LastStatus}}</span>
</p>
{{if .Status.ErrorMessage}}<p>Last message: {{.Status.ErrorMessage}}</p>{{end}}
<h2>Account value history</h2>
<table>
<tr><th>Date</th><th>Time</th><th>Total asset</th><th>Cash</th><th>Market value</th></tr>
{{range .Records}}
<tr><td>{{.Date}}</td><td>{{.Time}}</td><td>{{printf "%.2f" .TotalAsset}}</td><td>{{printf "%.2f" .Cash}}</td><td>{{printf "%.2f" .MarketValue}}</td></tr>
{{end}}
</table>
</body>
</html>`

var dashboardTmpl = template.Must(template.New("dashboard").Parse(dashboardTemplate))

type dashboardData struct {
	Status  status.RunStatus
	Records []storage.AccountValueRecord
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data := dashboardData{}
	data.Status, _ = s.status.Read()

	records, err := s.repo.ValueHistory(0)
	if err != nil {
		s.logger.Error("load value history", "error", err)
	} else {
		data.Records = records
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, data); err != nil {
		s.logger.Error("execute template", "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, _ := s.status.Read()
	writeJSON(w, st)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.repo.ValueHistory(0)
	if err != nil {
		s.logger.Error("load value history", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}
