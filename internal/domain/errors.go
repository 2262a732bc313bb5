package domain

import "errors"

var (
	// ErrInstallFailed — статический набор ресурсов закеширован не полностью, активация запрещена.
	ErrInstallFailed = errors.New("static cache install failed")
	// ErrCacheWrite — запись в кеш не удалась; не фатально, ресурс обслуживается из сети.
	ErrCacheWrite = errors.New("cache write failed")
	// ErrNetwork возвращается, если сетевой запрос не выполнен.
	ErrNetwork = errors.New("network request failed")
	// ErrOffline возвращается без сетевого запроса, пока сигнал offline.
	ErrOffline = errors.New("connectivity is offline")
	// ErrStoreUnavailable возвращается, если локальное хранилище не открылось.
	ErrStoreUnavailable = errors.New("order store unavailable")
	// ErrWrite — транзакция записи прервана, частичных изменений нет.
	ErrWrite = errors.New("order store write failed")
	// ErrRead возвращается при сбое транзакции чтения.
	ErrRead = errors.New("order store read failed")
	// ErrDelivery — сервер не подтвердил приём конкретного заказа.
	ErrDelivery = errors.New("order delivery failed")
	// ErrInvalidStatus возвращается для неизвестного статуса доставки.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidPayload возвращается, если тело заказа не JSON-объект.
	ErrInvalidPayload = errors.New("order payload must be a JSON object")
	// ErrLifecycle — событие жизненного цикла недопустимо в текущем состоянии.
	ErrLifecycle = errors.New("invalid cache manager lifecycle transition")
)
