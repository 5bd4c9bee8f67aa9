package dashboard

var dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>multipush</title>
    <style>
        body { font-family: system-ui, sans-serif; background: #1a1a2e; color: #eee; padding: 2rem; }
        .container { max-width: 900px; margin: auto; }
        h1 { font-size: 1.4rem; }
        .cards { display: flex; gap: 1rem; flex-wrap: wrap; margin: 1rem 0; }
        .card { background: #23233c; border-radius: 8px; padding: 0.8rem 1.2rem; min-width: 100px; }
        .card .label { color: #888; font-size: 0.75rem; text-transform: uppercase; }
        .card .value { font-size: 1.4rem; font-weight: bold; }
        .bar { background: #333; border-radius: 4px; height: 10px; overflow: hidden; margin: 1rem 0; }
        .bar .fill { background: #6366f1; height: 100%; transition: width 0.5s; }
        table { width: 100%; border-collapse: collapse; font-size: 0.85rem; }
        th, td { text-align: left; padding: 0.4rem 0.6rem; border-bottom: 1px solid #333; }
        th { color: #888; font-weight: normal; }
        .active { color: #4ade80; }
        .cooling_down { color: #facc15; }
        .disabled { color: #f87171; }
        #status { color: #666; font-size: 0.8rem; }
    </style>
</head>
<body>
    <div class="container">
        <h1>multipush</h1>
        <div class="cards">
            <div class="card"><div class="label">Uploaded</div><div class="value" id="uploaded">-</div></div>
            <div class="card"><div class="label">Pending</div><div class="value" id="pending">-</div></div>
            <div class="card"><div class="label">Failed</div><div class="value" id="failed">-</div></div>
            <div class="card"><div class="label">Skipped</div><div class="value" id="skipped">-</div></div>
            <div class="card"><div class="label">Rate</div><div class="value" id="rate">-</div></div>
            <div class="card"><div class="label">ETA</div><div class="value" id="eta">-</div></div>
        </div>
        <div class="bar"><div class="fill" id="progress-fill" style="width:0%"></div></div>
        <h2 style="font-size:1rem">Accounts</h2>
        <table>
            <thead><tr><th>Name</th><th>Status</th><th>Quota</th><th>Requests</th><th>Failed</th><th>Avg ms</th></tr></thead>
            <tbody id="accounts-body"><tr><td colspan="6">Loading...</td></tr></tbody>
        </table>
        <p id="status">Connecting...</p>
    </div>
    <script>
        function fmtEta(sec) {
            if (sec < 0) return '-';
            if (sec < 60) return sec + 's';
            return Math.floor(sec / 60) + 'm ' + (sec % 60) + 's';
        }

        async function refresh() {
            try {
                const res = await fetch('/api/progress', { cache: 'no-cache' });
                const p = await res.json();
                document.getElementById('uploaded').textContent = p.uploaded;
                document.getElementById('pending').textContent = p.pending;
                document.getElementById('failed').textContent = p.failed;
                document.getElementById('skipped').textContent = p.skipped;
                document.getElementById('rate').textContent = p.rate_per_sec.toFixed(1) + '/s';
                document.getElementById('eta').textContent = fmtEta(p.eta_seconds);
                const done = p.uploaded + p.failed + p.skipped;
                const pct = p.total > 0 ? (100 * done / p.total) : 0;
                document.getElementById('progress-fill').style.width = pct.toFixed(1) + '%';

                const ares = await fetch('/api/accounts', { cache: 'no-cache' });
                const data = await ares.json();
                let html = '';
                for (const a of data.accounts) {
                    html += '<tr><td>' + a.name + '</td>';
                    html += '<td class="' + a.status + '">' + a.status + '</td>';
                    html += '<td>' + a.rate_limit_remaining + ' / ' + a.rate_limit + '</td>';
                    html += '<td>' + a.requests + '</td>';
                    html += '<td>' + a.failed + '</td>';
                    html += '<td>' + a.avg_response_ms.toFixed(0) + '</td></tr>';
                }
                document.getElementById('accounts-body').innerHTML = html || '<tr><td colspan="6">No accounts</td></tr>';
                document.getElementById('status').textContent = 'Updated: ' + new Date().toLocaleTimeString();
            } catch (err) {
                document.getElementById('status').textContent = 'Error: ' + err.message;
            }
        }

        refresh();
        setInterval(refresh, 2000);
    </script>
</body>
</html>`
