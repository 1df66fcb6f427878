package http

import (
	"errors"
	"html/template"
	"net/http"

	"kakeibo/internal/api"
	"kakeibo/internal/core"
	"kakeibo/internal/events"
	"kakeibo/internal/log"
)

// parseTransactionForm validates the shared create/update form fields.
func (s *Server) parseTransactionForm(r *http.Request) (api.TransactionInput, core.Date, *HTMXResponseBuilder) {
	txType, err := core.ParseTransactionType(r.Form.Get("type"))
	if err != nil {
		return api.TransactionInput{}, core.Date{}, UnprocessableEntityError("取引種別が不正です")
	}

	cents, err := core.ParseAmountToCents(r.Form.Get("amount"))
	if err != nil || cents <= 0 {
		return api.TransactionInput{}, core.Date{}, UnprocessableEntityError("金額が不正です")
	}

	date, err := core.ParseDate(r.Form.Get("date"))
	if err != nil {
		return api.TransactionInput{}, core.Date{}, UnprocessableEntityError("日付が不正です")
	}

	majorID := sanitizeInput(r.Form.Get("major_id"))
	if majorID == "" {
		return api.TransactionInput{}, core.Date{}, UnprocessableEntityError("カテゴリを選択してください")
	}
	minorID := sanitizeInput(r.Form.Get("minor_id"))
	description := sanitizeInput(r.Form.Get("description"))

	input := api.TransactionInput{
		Type:            txType,
		MajorCategoryID: majorID,
		MinorCategoryID: minorID,
		Amount:          core.FlexAmount{Money: core.Money{Cents: cents}},
		Description:     description,
		TransactionDate: date.Key(),
	}

	// Category membership is checked against the taxonomy when one is
	// available; the backend stays the final validator.
	if tax, _, err := s.getTaxonomy(r.Context()); err == nil {
		if resolveErr := tax.Resolve(core.Transaction{
			Type:    txType,
			MajorID: majorID,
			MinorID: minorID,
		}); resolveErr != nil {
			return api.TransactionInput{}, core.Date{}, UnprocessableEntityError("カテゴリが不正です")
		}
	}

	return input, date, nil
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	input, date, errResp := s.parseTransactionForm(r)
	if errResp != nil {
		errResp.Write(w)
		return
	}

	tx, err := s.backend.CreateTransaction(r.Context(), input)
	if err != nil {
		s.writeMutationError(w, r, "create", err)
		return
	}

	year, month := date.Year(), int(date.Month())
	s.invalidateUserCaches()
	s.publish(r.Context(), events.TransactionCreated, tx.ID, year, month)

	s.logger.InfoContext(r.Context(), "transaction created",
		log.FieldTransactionID, tx.ID,
		log.FieldAmountCents, input.Amount.Cents,
		log.FieldYear, year, log.FieldMonth, month)

	NewHTMXResponse().
		TriggerTransactionChanged(year, month).
		TriggerMonthRefresh(year, month).
		TriggerFormReset().
		TriggerSuccessNotification("登録しました").
		BodyHTML(`<div class="success">登録しました: ` +
			template.HTMLEscapeString(input.Description) + ` ` +
			template.HTMLEscapeString(formatYen(input.Amount.Money)) + `</div>`).
		Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		NotFoundError("取引が見つかりません").Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	input, date, errResp := s.parseTransactionForm(r)
	if errResp != nil {
		errResp.Write(w)
		return
	}

	tx, err := s.backend.UpdateTransaction(r.Context(), id, input)
	if err != nil {
		s.writeMutationError(w, r, "update", err)
		return
	}

	year, month := date.Year(), int(date.Month())
	s.invalidateUserCaches()
	s.publish(r.Context(), events.TransactionUpdated, tx.ID, year, month)

	s.logger.InfoContext(r.Context(), "transaction updated",
		log.FieldTransactionID, tx.ID,
		log.FieldYear, year, log.FieldMonth, month)

	NewHTMXResponse().
		TriggerTransactionChanged(year, month).
		TriggerMonthRefresh(year, month).
		TriggerSuccessNotification("更新しました").
		BodyHTML(`<div class="success">更新しました</div>`).
		Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		NotFoundError("取引が見つかりません").Write(w)
		return
	}

	if err := s.backend.DeleteTransaction(r.Context(), id); err != nil {
		s.writeMutationError(w, r, "delete", err)
		return
	}

	// The deleted row's month rides along so the client can refresh it.
	params := ParseMonthParams(r.URL.Query())
	s.invalidateUserCaches()
	s.publish(r.Context(), events.TransactionDeleted, id, params.Year, params.Month)

	s.logger.InfoContext(r.Context(), "transaction deleted",
		log.FieldTransactionID, id,
		log.FieldYear, params.Year, log.FieldMonth, params.Month)

	NewHTMXResponse().
		TriggerTransactionChanged(params.Year, params.Month).
		TriggerMonthRefresh(params.Year, params.Month).
		TriggerSuccessNotification("削除しました").
		BodyHTML(`<div class="success">削除しました</div>`).
		Write(w)
}

// writeMutationError maps backend failures onto user-visible responses.
// Unlike reads, mutations never degrade silently.
func (s *Server) writeMutationError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.ErrorContext(r.Context(), "transaction mutation failed",
		log.FieldOperation, op, log.FieldError, err)

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusNotFound:
			NotFoundError("取引が見つかりません").Write(w)
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
			UnprocessableEntityError("保存できませんでした。入力を確認してください").Write(w)
		default:
			ErrorResponse(http.StatusBadGateway, "サーバーに保存できませんでした").Write(w)
		}
		return
	}
	ErrorResponse(http.StatusBadGateway, "サーバーに接続できませんでした").Write(w)
}
