package cachemgr

import (
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// Request описывает перехваченный запрос страницы.
type Request struct {
	Method string
	// URL абсолютный либо относительный к origin.
	URL    *url.URL
	Header http.Header
	// Key — ключ кеша: path+query для same-origin, абсолютный URL для остальных.
	Key string
	// Navigate — запрос навигации (загрузка документа).
	Navigate bool
}

// AssetRequest строит GET-запрос для ресурса из манифеста.
func AssetRequest(path string) Request {
	u := &url.URL{Path: path}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		u = &url.URL{Path: path[:i], RawQuery: path[i+1:]}
	}
	return Request{
		Method: http.MethodGet,
		URL:    u,
		Header: make(http.Header),
		Key:    path,
	}
}

// NewRequest строит Request из входящего HTTP-запроса прокси. origin — адрес приложения.
func NewRequest(r *http.Request, origin *url.URL) Request {
	target := *r.URL
	if !target.IsAbs() && origin != nil {
		target.Scheme = origin.Scheme
		target.Host = origin.Host
	}

	return Request{
		Method:   r.Method,
		URL:      &target,
		Header:   r.Header.Clone(),
		Key:      RequestKey(&target, origin),
		Navigate: isNavigation(r),
	}
}

// RequestKey вычисляет ключ кеша для URL относительно origin.
func RequestKey(u *url.URL, origin *url.URL) string {
	if sameOrigin(u, origin) {
		key := u.EscapedPath()
		if key == "" {
			key = "/"
		}
		if u.RawQuery != "" {
			key += "?" + u.RawQuery
		}
		return key
	}
	return u.String()
}

func sameOrigin(u *url.URL, origin *url.URL) bool {
	if !u.IsAbs() || origin == nil {
		return true
	}
	return strings.EqualFold(u.Scheme, origin.Scheme) && strings.EqualFold(u.Host, origin.Host)
}

func isNavigation(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return prefersHTML(r.Header.Get("Accept"))
}

// prefersHTML проверяет, что первый медиатип в Accept равен text/html.
func prefersHTML(accept string) bool {
	if accept == "" {
		return false
	}
	first := strings.SplitN(accept, ",", 2)[0]
	mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(first))
	if err != nil {
		return false
	}
	return mediaType == "text/html"
}
