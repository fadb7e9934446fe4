package api

import (
	"html/template"
	"log/slog"
	"net/http"
)

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="30">
<title>MaryCall Dashboard</title>
<style>
body { font-family: sans-serif; background: #1a1a2e; color: #eee; margin: 2em; }
h1 { color: #e94560; }
.cards { display: flex; flex-wrap: wrap; gap: 1em; }
.card { background: #16213e; border-radius: 8px; padding: 1.5em; min-width: 180px; }
.card .value { font-size: 2.2em; font-weight: bold; color: #e94560; }
.card .label { color: #aaa; margin-top: .3em; }
table { margin-top: 2em; border-collapse: collapse; }
td, th { padding: .4em 1em; border-bottom: 1px solid #333; text-align: left; }
</style>
</head>
<body>
<h1>MaryCall Dashboard</h1>
<div class="cards">
  <div class="card"><div class="value">{{.OnlineNow}}</div><div class="label">Online agora</div></div>
  <div class="card"><div class="value">{{.DailyUsers}}</div><div class="label">Usuários hoje</div></div>
  <div class="card"><div class="value">{{.WeeklyUsers}}</div><div class="label">Usuários na semana</div></div>
  <div class="card"><div class="value">{{.InteractionsToday}}</div><div class="label">Interações hoje</div></div>
  <div class="card"><div class="value">{{.InteractionsWeek}}</div><div class="label">Interações na semana</div></div>
</div>
<table>
<tr><th>Ação</th><th>Total</th></tr>
{{range $action, $count := .ActionCounts}}<tr><td>{{$action}}</td><td>{{$count}}</td></tr>
{{end}}
</table>
<p>Atualizado em {{.LastUpdate.Format "2006-01-02 15:04:05"}}</p>
</body>
</html>
`))

// handleDashboard renders the activity dashboard as server-side HTML. The
// page refreshes itself every 30 seconds.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, s.tracker.Snapshot()); err != nil {
		slog.Error("API dashboard render failed", "error", err)
	}
}
