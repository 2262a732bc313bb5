package domain

import "time"

// NotificationType различает сообщения для открытых страниц.
type NotificationType string

const (
	NotifyInstallProgress    NotificationType = "INSTALL_PROGRESS"
	NotifyInstallSuccess     NotificationType = "INSTALL_SUCCESS"
	NotifyInstallError       NotificationType = "INSTALL_ERROR"
	NotifyActivateProgress   NotificationType = "ACTIVATE_PROGRESS"
	NotifyActivateSuccess    NotificationType = "ACTIVATE_SUCCESS"
	NotifyActivateError      NotificationType = "ACTIVATE_ERROR"
	NotifyCacheHit           NotificationType = "CACHE_HIT"
	NotifyCacheUpdate        NotificationType = "CACHE_UPDATE"
	NotifyCacheUpdated       NotificationType = "CACHE_UPDATED"
	NotifyCacheError         NotificationType = "CACHE_ERROR"
	NotifyUpdateError        NotificationType = "UPDATE_ERROR"
	NotifyAPISuccess         NotificationType = "API_SUCCESS"
	NotifyAPIError           NotificationType = "API_ERROR"
	NotifyOfflineMode        NotificationType = "OFFLINE_MODE"
	NotifyNetworkError       NotificationType = "NETWORK_ERROR"
	NotifyUpdateReady        NotificationType = "UPDATE_READY"
	NotifyOrderAdded         NotificationType = "ORDER_ADDED"
	NotifyOrdersCleared      NotificationType = "ORDERS_CLEARED"
	NotifyOrderSynced        NotificationType = "ORDER_SYNCED"
	NotifySyncError          NotificationType = "SYNC_ERROR"
	NotifyConnectionRestored NotificationType = "CONNECTION_RESTORED"
	NotifyConnectionLost     NotificationType = "CONNECTION_LOST"
)

// Notification рассылается страницам без гарантии доставки.
type Notification struct {
	Type    NotificationType `json:"type"`
	Message string           `json:"message"`
	At      time.Time        `json:"at"`
}

// Notifier рассылает уведомления всем подключённым страницам.
type Notifier interface {
	Notify(n Notification)
}

// NopNotifier отбрасывает уведомления.
type NopNotifier struct{}

// Notify ничего не делает.
func (NopNotifier) Notify(Notification) {}
