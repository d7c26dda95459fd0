package web

import "net/http"

const uiIndexHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width,initial-scale=1" />
  <title>paperchat</title>
  <style>
    :root { --bg:#0f1115; --panel:#171a21; --line:#2a2f3a; --text:#e6e6e6; --muted:#8b93a7; --accent:#6aa9ff; --err:#ff6b6b; }
    * { box-sizing:border-box; }
    body { margin:0; font:14px/1.5 system-ui,sans-serif; background:var(--bg); color:var(--text); }
    header { display:flex; align-items:center; justify-content:space-between; padding:10px 16px; border-bottom:1px solid var(--line); }
    header .title { font-weight:600; }
    header .meta { color:var(--muted); font-size:12px; }
    main { display:grid; grid-template-columns:260px 1fr; height:calc(100vh - 52px); }
    aside { border-right:1px solid var(--line); padding:12px; overflow:auto; }
    aside label { display:block; color:var(--muted); font-size:12px; margin:10px 0 4px; }
    select, input, textarea { width:100%; background:var(--panel); color:var(--text); border:1px solid var(--line); border-radius:6px; padding:6px; }
    select[multiple] { height:110px; }
    .btn { background:var(--panel); color:var(--text); border:1px solid var(--line); border-radius:6px; padding:6px 12px; cursor:pointer; }
    .btn.primary { background:var(--accent); color:#000; border-color:var(--accent); }
    section { display:flex; flex-direction:column; min-height:0; }
    #messages { flex:1; overflow:auto; padding:16px; }
    .msg { max-width:860px; margin:0 0 14px; padding:10px 12px; border-radius:8px; background:var(--panel); white-space:pre-wrap; }
    .msg.user { border-left:3px solid var(--accent); }
    .msg.error { border-left:3px solid var(--err); color:var(--err); }
    .cites { margin-top:8px; font-size:12px; color:var(--muted); }
    .cites a { color:var(--accent); text-decoration:none; }
    .composer { display:flex; gap:8px; padding:12px; border-top:1px solid var(--line); }
    .composer textarea { height:60px; resize:vertical; }
    #status { color:var(--muted); font-size:12px; padding:0 12px 8px; }
  </style>
</head>
<body>
  <header>
    <div>
      <div class="title">paperchat</div>
      <div class="meta" id="health">connecting…</div>
    </div>
    <div>
      <button id="btnExport" class="btn">Export</button>
      <button id="btnReset" class="btn">Reset</button>
    </div>
  </header>
  <main>
    <aside>
      <label for="mode">Mode</label>
      <select id="mode"><option value="chat">Chat (uses history)</option><option value="query">Single question</option></select>
      <label for="nResults">Papers per answer</label>
      <input id="nResults" type="number" min="1" max="20" value="5" />
      <label for="sessions">Sessions</label>
      <select id="sessions" multiple></select>
      <label for="topics">Topics</label>
      <select id="topics" multiple></select>
      <label for="eventtypes">Event types</label>
      <select id="eventtypes" multiple></select>
    </aside>
    <section>
      <div id="messages"></div>
      <div class="composer">
        <textarea id="input" placeholder="Ask about the papers… (Ctrl+Enter to send)"></textarea>
        <button id="btnSend" class="btn primary">Send</button>
      </div>
      <div id="status">Ready.</div>
    </section>
  </main>
  <script>
  (function () {
    const $ = (id) => document.getElementById(id);
    let sessionId = localStorage.getItem("paperchat.session") || "";

    function selected(id) {
      return Array.from($(id).selectedOptions).map((o) => o.value);
    }

    function fill(id, values) {
      $(id).innerHTML = "";
      (values || []).forEach((v) => {
        const o = document.createElement("option");
        o.value = v; o.textContent = v;
        $(id).appendChild(o);
      });
    }

    function add(kind, text, papers) {
      const div = document.createElement("div");
      div.className = "msg " + kind;
      div.textContent = text;
      if (papers && papers.length) {
        const c = document.createElement("div");
        c.className = "cites";
        papers.forEach((p, i) => {
          const line = document.createElement("div");
          const a = document.createElement("a");
          a.href = p.virtual_url || p.paper_url || "#";
          a.target = "_blank";
          a.textContent = "[" + (i + 1) + "] " + p.title;
          line.appendChild(a);
          line.appendChild(document.createTextNode(" (" + p.similarity.toFixed(2) + ")"));
          c.appendChild(line);
        });
        div.appendChild(c);
      }
      $("messages").appendChild(div);
      $("messages").scrollTop = $("messages").scrollHeight;
    }

    async function api(method, path, body) {
      const res = await fetch(path, {
        method,
        headers: { "Content-Type": "application/json" },
        body: body ? JSON.stringify(body) : undefined,
      });
      const data = await res.json();
      if (!data.ok) throw new Error(data.error || res.statusText);
      return data;
    }

    async function send() {
      const message = $("input").value.trim();
      if (!message) return;
      $("input").value = "";
      add("user", message);
      $("status").textContent = "Thinking…";
      try {
        const data = await api("POST", "/api/chat", {
          session_id: sessionId,
          message,
          mode: $("mode").value,
          n_results: parseInt($("nResults").value, 10) || 5,
          filter: { sessions: selected("sessions"), topics: selected("topics"), eventtypes: selected("eventtypes") },
        });
        sessionId = data.session_id;
        localStorage.setItem("paperchat.session", sessionId);
        add("assistant", data.answer.text, data.answer.papers);
        const m = data.answer.meta;
        $("status").textContent = (m.retrieved_new_papers ? "Retrieved" : "Reused") + " papers for: " + m.query + " · " + data.turn_count + " turns";
      } catch (e) {
        add("error", e.message);
        $("status").textContent = "Error.";
      }
    }

    $("btnSend").onclick = send;
    $("input").addEventListener("keydown", (e) => {
      if (e.key === "Enter" && (e.ctrlKey || e.metaKey)) send();
    });
    $("btnReset").onclick = async () => {
      if (!sessionId) return;
      try { await api("POST", "/api/chat/reset", { session_id: sessionId }); } catch (e) {}
      $("messages").innerHTML = "";
      $("status").textContent = "Conversation reset.";
    };
    $("btnExport").onclick = async () => {
      if (!sessionId) return;
      try {
        const data = await api("POST", "/api/chat/export", { session_id: sessionId });
        $("status").textContent = "Exported to " + data.path;
      } catch (e) { $("status").textContent = e.message; }
    };

    api("GET", "/health").then((h) => {
      $("health").textContent = (h.papers || 0) + " papers" + (h.model ? " · " + h.model : "");
    }).catch(() => { $("health").textContent = "server unreachable"; });
    api("GET", "/api/filters").then((d) => {
      fill("sessions", d.filters.sessions);
      fill("topics", d.filters.topics);
      fill("eventtypes", d.filters.eventtypes);
    }).catch(() => {});
    if (sessionId) {
      fetch("/api/chat/state?session_id=" + encodeURIComponent(sessionId))
        .then((r) => r.json())
        .then((d) => {
          if (!d.ok) { sessionId = ""; return; }
          d.turns.forEach((t) => add(t.role, t.content));
        });
    }
  })();
  </script>
</body>
</html>
`

func registerUI(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(uiIndexHTML))
	})
}
