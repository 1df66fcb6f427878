// Package http serves the dashboard UI and its htmx partials.
//
// This file provides a fluent builder for htmx responses, centralizing
// HX-Trigger header construction and error formatting.
package http

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// HTMXResponseBuilder accumulates triggers, headers, and a body for one
// htmx response.
type HTMXResponseBuilder struct {
	triggers   map[string]interface{}
	statusCode int
	body       []byte
	headers    map[string]string
}

func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		triggers:   make(map[string]interface{}),
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.statusCode = code
	return b
}

// Trigger adds a named client event to the HX-Trigger header.
func (b *HTMXResponseBuilder) Trigger(name string, data interface{}) *HTMXResponseBuilder {
	b.triggers[name] = data
	return b
}

// TriggerMonthRefresh tells the client to reload the month views.
func (b *HTMXResponseBuilder) TriggerMonthRefresh(year, month int) *HTMXResponseBuilder {
	return b.Trigger("month:refresh", map[string]int{"year": year, "month": month})
}

// TriggerTransactionChanged fires after any create/update/delete.
func (b *HTMXResponseBuilder) TriggerTransactionChanged(year, month int) *HTMXResponseBuilder {
	return b.Trigger("transaction:changed", map[string]int{"year": year, "month": month})
}

// TriggerMonthsRefresh tells the client to reload every listed month.
// Receipt items are individually date-editable, so one submit can touch
// several months.
func (b *HTMXResponseBuilder) TriggerMonthsRefresh(months []MonthParams) *HTMXResponseBuilder {
	if len(months) == 1 {
		return b.TriggerMonthRefresh(months[0].Year, months[0].Month)
	}
	payload := make([]map[string]int, 0, len(months))
	for _, m := range months {
		payload = append(payload, map[string]int{"year": m.Year, "month": m.Month})
	}
	return b.Trigger("month:refresh", payload)
}

// TriggerReceiptImported fires after a receipt submit persisted items.
func (b *HTMXResponseBuilder) TriggerReceiptImported(count int) *HTMXResponseBuilder {
	return b.Trigger("receipt:imported", map[string]int{"count": count})
}

func (b *HTMXResponseBuilder) TriggerFormReset() *HTMXResponseBuilder {
	return b.Trigger("form:reset", struct{}{})
}

type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
)

func (b *HTMXResponseBuilder) TriggerNotification(notifType NotificationType, message string, durationMs int) *HTMXResponseBuilder {
	return b.Trigger("show-notification", map[string]interface{}{
		"type":     string(notifType),
		"message":  message,
		"duration": durationMs,
	})
}

func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationSuccess, message, 3000)
}

func (b *HTMXResponseBuilder) TriggerErrorNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationError, message, 5000)
}

func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.headers[name] = value
	return b
}

func (b *HTMXResponseBuilder) Body(content []byte) *HTMXResponseBuilder {
	b.body = content
	return b
}

func (b *HTMXResponseBuilder) BodyHTML(html string) *HTMXResponseBuilder {
	b.headers["Content-Type"] = "text/html; charset=utf-8"
	b.body = []byte(html)
	return b
}

// Write sends the built response.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if len(b.triggers) > 0 {
		if triggerJSON, err := json.Marshal(b.triggers); err == nil {
			w.Header().Set("HX-Trigger", string(triggerJSON))
		}
	}

	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorResponse formats an HTML-escaped error block.
func ErrorResponse(statusCode int, message string) *HTMXResponseBuilder {
	escapedMsg := template.HTMLEscapeString(message)
	return NewHTMXResponse().
		Status(statusCode).
		BodyHTML(`<div class="error">` + escapedMsg + `</div>`)
}

func BadRequestError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func UnprocessableEntityError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func InternalServerError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

func NotFoundError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}
