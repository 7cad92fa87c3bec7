package report

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Name}} - Load Run Report</title>
    <script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
    <style>
        :root {
            --bg: #f8fafc;
            --card: #ffffff;
            --text: #1e293b;
            --muted: #64748b;
            --border: #e2e8f0;
            --primary: #3b82f6;
            --ok: #22c55e;
            --warn: #f59e0b;
            --error: #ef4444;
            --shadow: 0 1px 3px rgba(0, 0, 0, 0.1);
        }
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif;
            background: var(--bg);
            color: var(--text);
            line-height: 1.6;
        }
        .container { max-width: 1200px; margin: 0 auto; padding: 2rem; }
        .card {
            background: var(--card);
            border-radius: 12px;
            padding: 1.5rem;
            margin-bottom: 1.5rem;
            box-shadow: var(--shadow);
        }
        .header { display: flex; justify-content: space-between; align-items: center; flex-wrap: wrap; gap: 1rem; }
        .header h1 { font-size: 1.75rem; }
        .meta { color: var(--muted); font-size: 0.875rem; display: flex; gap: 1.5rem; }
        .status { padding: 0.5rem 1.25rem; border-radius: 999px; font-weight: 700; color: #fff; }
        .status.pass { background: var(--ok); }
        .status.fail { background: var(--error); }
        .status.aborted { background: var(--warn); }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(170px, 1fr)); gap: 1rem; margin-bottom: 1.5rem; }
        .metric .label { color: var(--muted); font-size: 0.75rem; text-transform: uppercase; letter-spacing: 0.05em; }
        .metric .value { font-size: 1.6rem; font-weight: 700; }
        .metric .unit { font-size: 0.875rem; color: var(--muted); margin-left: 0.25rem; }
        h2 { font-size: 1.1rem; margin-bottom: 1rem; }
        table { width: 100%; border-collapse: collapse; font-size: 0.875rem; }
        th, td { text-align: left; padding: 0.5rem; border-bottom: 1px solid var(--border); }
        th { color: var(--muted); font-weight: 600; }
        .chart { position: relative; height: 280px; }
        .error { color: var(--error); }
        footer { text-align: center; color: var(--muted); font-size: 0.75rem; padding: 1rem; }
    </style>
</head>
<body>
<div class="container">
    <div class="card header">
        <div>
            <h1>{{.Name}}</h1>
            {{if .Description}}<p>{{.Description}}</p>{{end}}
            <div class="meta">
                <span>{{.StartTime.Format "2006-01-02 15:04:05"}}</span>
                <span>{{.Generator}}, {{.Period}}</span>
                <span>{{formatDuration .Duration}}</span>
            </div>
        </div>
        {{if .Aborted}}<div class="status aborted">ABORTED</div>
        {{else if .Passed}}<div class="status pass">PASSED</div>
        {{else}}<div class="status fail">FAILED</div>{{end}}
    </div>

    {{with .Metrics}}
    <div class="grid">
        <div class="card metric"><div class="label">Iterations</div><div class="value">{{formatNumber .Iterations}}</div></div>
        <div class="card metric"><div class="label">Throughput</div><div class="value">{{printf "%.1f" .Throughput}}<span class="unit">it/s</span></div></div>
        <div class="card metric"><div class="label">Error Rate</div><div class="value">{{printf "%.2f" (mul .ErrorRate 100)}}<span class="unit">%</span></div></div>
        <div class="card metric"><div class="label">P95 Latency</div><div class="value">{{formatLatency .Latency.P95}}</div></div>
        <div class="card metric"><div class="label">Success Rate</div><div class="value">{{printf "%.2f" (successRate .)}}<span class="unit">%</span></div></div>
        <div class="card metric"><div class="label">Transferred</div><div class="value">{{formatBytes (add .RequestBytes .ResponseBytes)}}</div></div>
    </div>

    <div class="card">
        <h2>Latency</h2>
        <table>
            <tr><th>Min</th><th>Mean</th><th>P50</th><th>P90</th><th>P95</th><th>P99</th><th>Max</th><th>Std Dev</th></tr>
            <tr>
                <td>{{formatLatency .Latency.Min}}</td>
                <td>{{formatLatency .Latency.Mean}}</td>
                <td>{{formatLatency .Latency.P50}}</td>
                <td>{{formatLatency .Latency.P90}}</td>
                <td>{{formatLatency .Latency.P95}}</td>
                <td>{{formatLatency .Latency.P99}}</td>
                <td>{{formatLatency .Latency.Max}}</td>
                <td>{{formatLatency .Latency.StdDev}}</td>
            </tr>
        </table>
        <p class="meta" style="margin-top: 0.75rem">Queued before running: P95 {{formatLatency .QueueLatency.P95}}, max {{formatLatency .QueueLatency.Max}}</p>
    </div>
    {{end}}

    {{if .Points}}
    <div class="card">
        <h2>Throughput and Threads</h2>
        <div class="chart"><canvas id="throughputChart"></canvas></div>
    </div>
    <div class="card">
        <h2>Latency over Time</h2>
        <div class="chart"><canvas id="latencyChart"></canvas></div>
    </div>
    {{end}}

    {{if .Concurrency}}
    <div class="card">
        <h2>Concurrency</h2>
        <table>
            <tr><th>Time</th><th>Phase</th><th>Threads</th><th>Progress</th></tr>
            {{range .Concurrency}}
            <tr><td>{{.Timestamp.Format "15:04:05.000"}}</td><td>{{.Phase}}</td><td>{{.Threads}}</td><td>{{.Progress}}</td></tr>
            {{end}}
        </table>
    </div>
    {{end}}

    <div class="card">
        <h2>Generator</h2>
        <table>
            <tr><th>Admitted</th><th>Admission Timeouts</th><th>Completed</th><th>Errors</th><th>Discarded</th><th>Shutdown Period</th><th>Residual</th></tr>
            <tr>
                <td>{{formatNumber .Stats.Admitted}}</td>
                <td>{{formatNumber .Stats.AdmissionTimeouts}}</td>
                <td>{{formatNumber .Stats.TasksCompleted}}</td>
                <td>{{formatNumber .Stats.TaskErrors}}</td>
                <td>{{formatNumber .Stats.TasksDiscarded}}</td>
                <td>{{formatDuration .Stats.ShutdownPeriod}}</td>
                <td>{{.Stats.Residual}}</td>
            </tr>
        </table>
    </div>

    {{if or .Validation .Correlation}}
    <div class="card">
        <h2>Responses</h2>
        <table>
            {{with .Validation}}<tr><th>Validation</th><td>{{.Passed}} passed, {{.Failed}} failed, {{.Skipped}} skipped</td></tr>{{end}}
            {{with .Correlation}}<tr><th>Correlation</th><td>{{.Matched}} of {{.Registered}} matched, {{.Unknown}} unknown, {{.Pending}} pending</td></tr>{{end}}
        </table>
    </div>
    {{end}}

    {{if .Error}}<div class="card error">{{.Error}}</div>{{end}}

    <footer>Generated by pacer {{.EndTime.Format "2006-01-02 15:04:05 MST"}}</footer>
</div>

<script>
    const series = {{.TimeSeriesJSON}};
    if (series.length > 0 && typeof Chart !== 'undefined') {
        const labels = series.map(p => p.elapsed.toFixed(1) + 's');

        new Chart(document.getElementById('throughputChart'), {
            type: 'line',
            data: {
                labels: labels,
                datasets: [
                    { label: 'Throughput (it/s)', data: series.map(p => p.throughput), borderColor: '#3b82f6', yAxisID: 'y', tension: 0.2 },
                    { label: 'Threads', data: series.map(p => p.threads), borderColor: '#a855f7', stepped: true, yAxisID: 'y1' },
                    { label: 'Error Rate (%)', data: series.map(p => p.errorRate), borderColor: '#ef4444', yAxisID: 'y1', hidden: true }
                ]
            },
            options: {
                maintainAspectRatio: false,
                interaction: { mode: 'index', intersect: false },
                plugins: { tooltip: { callbacks: { afterTitle: items => 'Phase: ' + series[items[0].dataIndex].phase } } },
                scales: {
                    y: { beginAtZero: true, position: 'left' },
                    y1: { beginAtZero: true, position: 'right', grid: { drawOnChartArea: false } }
                }
            }
        });

        new Chart(document.getElementById('latencyChart'), {
            type: 'line',
            data: {
                labels: labels,
                datasets: [
                    { label: 'P50 (ms)', data: series.map(p => p.p50), borderColor: '#22c55e', tension: 0.2 },
                    { label: 'P95 (ms)', data: series.map(p => p.p95), borderColor: '#f59e0b', tension: 0.2 },
                    { label: 'P99 (ms)', data: series.map(p => p.p99), borderColor: '#ef4444', tension: 0.2 }
                ]
            },
            options: {
                maintainAspectRatio: false,
                interaction: { mode: 'index', intersect: false },
                scales: { y: { beginAtZero: true } }
            }
        });
    }
</script>
</body>
</html>
`
