package domain

import (
	"net/http"
	"time"
)

// ResponseType повторяет классификацию ответов fetch: same-origin, cross-origin и т.д.
type ResponseType string

const (
	// ResponseTypeBasic — same-origin ответ, единственный тип, который кешируется.
	ResponseTypeBasic ResponseType = "basic"
	// ResponseTypeCORS помечает cross-origin ответ.
	ResponseTypeCORS ResponseType = "cors"
	// ResponseTypeSynthetic помечает ответ, собранный локально.
	ResponseTypeSynthetic ResponseType = "synthetic"
)

// CachedResponse хранится в поколении кеша.
type CachedResponse struct {
	Status   int
	Header   http.Header
	Body     []byte
	Type     ResponseType
	StoredAt time.Time
}

// Cacheable сообщает, можно ли сохранить ответ в dynamic-поколение.
func (r CachedResponse) Cacheable() bool {
	return r.Status == http.StatusOK && r.Type == ResponseTypeBasic
}

// Clone возвращает копию, не разделяющую заголовки и тело с оригиналом.
func (r CachedResponse) Clone() CachedResponse {
	out := r
	out.Header = r.Header.Clone()
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return out
}
