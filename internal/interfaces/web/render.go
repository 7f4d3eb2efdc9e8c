package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"payboard/internal/application"
	"payboard/internal/domain"
	"payboard/internal/present"
)

//go:embed templates
var templateFS embed.FS

// Site holds the externally visible URLs the pages link to.
type Site struct {
	PublicBaseURL string
	PaymentAppURL string
	AvatarBaseURL string
}

type nameParts struct {
	First string
	Rest  string
}

type pageData struct {
	Handle     string
	AvatarURL  string
	DonateURL  string
	OGImageURL string
	View       any
}

type errorView struct {
	Title   string
	Message string
}

type renderer struct {
	site  Site
	pages map[string]*template.Template
	og    *template.Template
}

var pageNames = []string{"dashboard", "payments", "receipt", "finalize", "error"}

func newRenderer(site Site, now func() time.Time) (*renderer, error) {
	funcs := template.FuncMap{
		"fiat":            present.Fiat,
		"fiatString":      present.FiatString,
		"shortHash":       present.ShortTxHash,
		"truncateAddress": present.TruncateAddress,
		"displayName":     present.DisplayName,
		"rankify":         present.Rankify,
		"chain":           present.Chain,
		"splitName": func(name string) nameParts {
			first, rest := present.SplitName(name)
			return nameParts{First: first, Rest: rest}
		},
		"showRank": showRank,
		"recentRows": func(view application.DashboardView) application.PaymentListView {
			return application.PaymentListView{Handle: view.Handle, Payments: view.Recent}
		},
		"receiptURL": func(txHash string) string {
			return present.ReceiptURL(site.PaymentAppURL, txHash)
		},
		"age": func(t time.Time) string {
			return present.Age(t, now())
		},
		"utcDate": func(t time.Time) string { return t.UTC().Format(domain.DateLayout) },
		"utcTime": func(t time.Time) string { return t.UTC().Format(domain.TimeLayout) },
		"rowY":    func(i int) int { return 280 + i*70 },
	}

	r := &renderer{site: site, pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html",
			"templates/partials.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		r.pages[name] = tmpl
	}
	og, err := template.New("og").Funcs(funcs).ParseFS(templateFS, "templates/opengraph.svg")
	if err != nil {
		return nil, fmt.Errorf("parse opengraph template: %w", err)
	}
	r.og = og
	return r, nil
}

// showRank hides the rank of a row that ties with the row above it.
func showRank(rows []domain.SenderAggregate, i int) bool {
	return i == 0 || i >= len(rows) || rows[i-1].Rank != rows[i].Rank
}

func (r *renderer) data(handle string, view any) pageData {
	data := pageData{Handle: handle, View: view}
	if handle != "" {
		data.AvatarURL = present.AvatarURL(r.site.AvatarBaseURL, handle)
		data.DonateURL = present.DonateURL(r.site.PaymentAppURL, r.site.PublicBaseURL, handle)
		data.OGImageURL = present.OpenGraphURL(r.site.PublicBaseURL, handle)
	}
	return data
}

// page renders into a buffer first so a template failure never leaves a half
// written 200 behind.
func (r *renderer) page(w http.ResponseWriter, status int, name, handle string, view any) {
	var buf bytes.Buffer
	if err := r.pages[name].ExecuteTemplate(&buf, "layout", r.data(handle, view)); err != nil {
		slog.Error("template render failed", "template", name, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (r *renderer) errorPage(w http.ResponseWriter, status int, title, message string) {
	r.page(w, status, "error", "", errorView{Title: title, Message: message})
}

func (r *renderer) openGraph(w http.ResponseWriter, view application.PreviewView) {
	var buf bytes.Buffer
	if err := r.og.ExecuteTemplate(&buf, "opengraph", view); err != nil {
		slog.Error("opengraph render failed", "handle", view.Handle, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=60")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
