package cachemgr

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	log "github.com/sirupsen/logrus"
)

// RouteHeader сообщает странице, какая ветка политики обслужила запрос.
const RouteHeader = "X-Foodies-Cache-Route"

// Handler перехватывает HTTP-запросы страницы и отдаёт их Dispatcher.
// Запросы, не участвующие в кешировании, проксируются на origin без изменений.
type Handler struct {
	dispatcher *Dispatcher
	origin     *url.URL
	proxy      *httputil.ReverseProxy
	logger     *log.Entry
}

// NewHandler создаёт Handler.
func NewHandler(dispatcher *Dispatcher, origin *url.URL, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "cache-proxy")
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(origin)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.WithError(err).WithField("path", r.URL.Path).Warn("passthrough request failed")
			resp := networkUnavailable()
			writeResponse(w, RoutePassthrough, resp.Status, resp.Header, resp.Body)
		},
	}

	return &Handler{
		dispatcher: dispatcher,
		origin:     origin,
		proxy:      proxy,
		logger:     logger,
	}
}

// ServeHTTP реализует http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := NewRequest(r, h.origin)

	outcome, err := h.dispatcher.Dispatch(r.Context(), Event{Kind: EventFetch, Request: req}).Wait(r.Context())
	if err != nil {
		h.logger.WithError(err).WithField("key", req.Key).Warn("fetch event was not resolved")
		return
	}
	if outcome.Passthrough() {
		w.Header().Set(RouteHeader, string(RoutePassthrough))
		h.proxy.ServeHTTP(w, r)
		return
	}

	resp := outcome.Response
	writeResponse(w, outcome.Route, resp.Status, resp.Header, resp.Body)
}

func writeResponse(w http.ResponseWriter, route RouteKind, status int, header http.Header, body []byte) {
	for name, values := range header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set(RouteHeader, string(route))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
