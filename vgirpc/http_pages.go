// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"fmt"
	"html"
	"net/http"
	"strings"
)

// --- HTML templates ---

const pageStyle = `<style>
  body { font-family: system-ui, -apple-system, sans-serif; max-width: 760px;
         margin: 0 auto; padding: 48px 20px 0; color: #2c2c1e; background: #faf8f0; }
  h1 { color: #2d5016; margin-bottom: 6px; }
  code { font-family: ui-monospace, monospace; background: #f0ece0;
          padding: 2px 6px; border-radius: 3px; font-size: 0.9em; }
  a { color: #2d5016; }
  .meta { color: #6b6b5a; font-size: 0.9em; }
  .card { border: 1px solid #f0ece0; border-radius: 8px; padding: 14px 18px;
           margin-bottom: 12px; background: #fff; }
  .fn { font-family: ui-monospace, monospace; font-weight: 600; color: #2d5016; }
  .badge { display: inline-block; margin-left: 8px; padding: 2px 8px; border-radius: 4px;
            font-size: 0.75em; font-weight: 600; background: #e8f5e0; color: #2d5016; }
  footer { margin-top: 40px; padding: 16px 0; border-top: 1px solid #f0ece0;
            color: #6b6b5a; font-size: 0.85em; }
</style>`

const notFoundHTMLTemplate = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>404 &mdash; vgi-rpc endpoint</title>
%s
</head>
<body>
<h1>404 &mdash; Not Found</h1>
<p>This is a <code>vgi-rpc</code> service endpoint%s.</p>
<p>Remote functions are called with <code>POST %s/%s</code>.</p>
</body>
</html>`

const landingHTMLTemplate = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>%s &mdash; vgi-rpc</title>
%s
</head>
<body>
<h1>%s</h1>
<p class="meta">Powered by <code>vgi-rpc</code> (Go) &middot; server <code>%s</code></p>
<p>%d remote functions in %d packages. <a href="%s">View functions</a></p>
<footer>&copy; 2026 <a href="https://query.farm">Query.Farm LLC</a></footer>
</body>
</html>`

const describeHTMLTemplate = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>%s functions &mdash; vgi-rpc</title>
%s
</head>
<body>
<h1>%s</h1>
<p class="meta">Server <code>%s</code> &middot; call with <code>POST %s/%s</code></p>
%s
<footer>&copy; 2026 <a href="https://query.farm">Query.Farm LLC</a></footer>
</body>
</html>`

// --- Page builders ---

func (h *HttpServer) protocolName() string {
	if h.server.serviceName != "" {
		return h.server.serviceName
	}
	return "GoRpcServer"
}

func (h *HttpServer) buildNotFoundHTML() []byte {
	var fragment string
	if h.server.serviceName != "" {
		fragment = " serving <strong>" + html.EscapeString(h.server.serviceName) + "</strong>"
	}
	return []byte(fmt.Sprintf(notFoundHTMLTemplate,
		pageStyle,
		fragment,
		html.EscapeString(h.prefix),
		MethodExecute,
	))
}

func (h *HttpServer) buildLandingHTML() []byte {
	names := h.server.availableFunctions()
	packages := make(map[string]struct{})
	for _, name := range names {
		packages[h.server.functions[name].Package] = struct{}{}
	}
	name := html.EscapeString(h.protocolName())
	return []byte(fmt.Sprintf(landingHTMLTemplate,
		name, // <title>
		pageStyle,
		name, // <h1>
		html.EscapeString(h.server.serverID),
		len(names),
		len(packages),
		html.EscapeString(h.prefix+"/functions"),
	))
}

func (h *HttpServer) buildDescribeHTML() []byte {
	var cards strings.Builder
	for _, name := range h.server.availableFunctions() {
		info := h.server.functions[name]
		fmt.Fprintf(&cards, `<div class="card"><span class="fn">%s</span><span class="badge">%s</span></div>`+"\n",
			html.EscapeString(info.Name),
			html.EscapeString(info.Package),
		)
	}
	if cards.Len() == 0 {
		cards.WriteString(`<p class="meta">No functions registered.</p>`)
	}
	name := html.EscapeString(h.protocolName())
	return []byte(fmt.Sprintf(describeHTMLTemplate,
		name, // <title>
		pageStyle,
		name, // <h1>
		html.EscapeString(h.server.serverID),
		html.EscapeString(h.prefix),
		MethodExecute,
		cards.String(),
	))
}

// --- HTTP handlers ---

func writeHTML(w http.ResponseWriter, status int, page []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(page)
}

func (h *HttpServer) handleLandingPage(w http.ResponseWriter, _ *http.Request) {
	writeHTML(w, http.StatusOK, h.buildLandingHTML())
}

func (h *HttpServer) handleDescribePage(w http.ResponseWriter, _ *http.Request) {
	writeHTML(w, http.StatusOK, h.buildDescribeHTML())
}

func (h *HttpServer) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeHTML(w, http.StatusNotFound, h.buildNotFoundHTML())
}
