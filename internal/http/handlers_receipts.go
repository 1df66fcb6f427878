package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"kakeibo/internal/api"
	"kakeibo/internal/core"
	"kakeibo/internal/events"
	"kakeibo/internal/log"
	"kakeibo/internal/receipts"
)

const maxReceiptUpload = 10 << 20 // 10 MiB

type receiptItemRow struct {
	Index       int
	Description string
	Amount      string
	AmountRaw   string
	DateKey     string
	MajorID     string
	MinorID     string
	Minors      []core.MinorCategory
}

type receiptView struct {
	State    receipts.State
	Progress int
	Items    []receiptItemRow
	Majors   []core.MajorCategory
}

// session returns the user's current import session, if any.
func (s *Server) session() *receipts.Session {
	s.importMu.Lock()
	defer s.importMu.Unlock()
	return s.imports[s.userID]
}

func (s *Server) handleReceiptAnalyze(w http.ResponseWriter, r *http.Request) {
	tax, _, err := s.getTaxonomy(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "receipt analyze needs taxonomy", log.FieldError, err)
		ErrorResponse(http.StatusBadGateway, "カテゴリを取得できませんでした").Write(w)
		return
	}

	if err := r.ParseMultipartForm(maxReceiptUpload); err != nil {
		BadRequestError("画像のアップロードに失敗しました").Write(w)
		return
	}
	file, header, err := r.FormFile("receipt")
	if err != nil {
		BadRequestError("レシート画像を選択してください").Write(w)
		return
	}
	defer file.Close()

	session := receipts.NewSession(s.backend, tax, s.userID, s.logger.Logger)
	s.importMu.Lock()
	s.imports[s.userID] = session
	s.importMu.Unlock()

	if err := session.Analyze(r.Context(), header.Filename, file); err != nil {
		if errors.Is(err, api.ErrEmptyResult) {
			UnprocessableEntityError("レシートから項目を抽出できませんでした").Write(w)
			return
		}
		s.logger.ErrorContext(r.Context(), "receipt analysis failed",
			log.FieldImportID, session.ID, log.FieldError, err)
		ErrorResponse(http.StatusBadGateway, "レシートを解析できませんでした").Write(w)
		return
	}

	s.renderReceiptItems(w, r, session, tax)
}

func (s *Server) handleReceiptStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	data := receiptView{State: receipts.StateIdle}
	if session := s.session(); session != nil {
		data.State, data.Progress = session.Snapshot()
	}

	if s.templates == nil {
		_, _ = w.Write([]byte(`<div id="receipt-status"></div>`))
		return
	}
	if err := s.templates.ExecuteTemplate(w, "receipt_status.html", data); err != nil {
		s.logger.ErrorContext(r.Context(), "receipt status template failed", log.FieldError, err)
		_, _ = w.Write([]byte(`<div id="receipt-status"></div>`))
	}
}

func (s *Server) handleReceiptEditItem(w http.ResponseWriter, r *http.Request) {
	session, index, resp := s.receiptItemRequest(r)
	if resp != nil {
		resp.Write(w)
		return
	}

	cents, err := core.ParseAmountToCents(r.Form.Get("amount"))
	if err != nil || cents <= 0 {
		UnprocessableEntityError("金額が不正です").Write(w)
		return
	}
	date, err := core.ParseDate(r.Form.Get("date"))
	if err != nil {
		UnprocessableEntityError("日付が不正です").Write(w)
		return
	}
	description := sanitizeInput(r.Form.Get("description"))

	if err := session.EditItem(index, description, core.Money{Cents: cents}, date); err != nil {
		s.writeReceiptSessionError(w, err)
		return
	}
	s.renderReceiptItemsFromCache(w, r, session)
}

// handleReceiptSetCategory changes an item's category. Selecting a new
// major resets the minor to the major's first minor.
func (s *Server) handleReceiptSetCategory(w http.ResponseWriter, r *http.Request) {
	session, index, resp := s.receiptItemRequest(r)
	if resp != nil {
		resp.Write(w)
		return
	}

	var err error
	if majorID := sanitizeInput(r.Form.Get("major_id")); majorID != "" {
		err = session.SetMajorCategory(index, majorID)
	} else if minorID := sanitizeInput(r.Form.Get("minor_id")); minorID != "" {
		err = session.SetMinorCategory(index, minorID)
	} else {
		BadRequestError("カテゴリを指定してください").Write(w)
		return
	}
	if err != nil {
		s.writeReceiptSessionError(w, err)
		return
	}
	s.renderReceiptItemsFromCache(w, r, session)
}

func (s *Server) handleReceiptRemoveItem(w http.ResponseWriter, r *http.Request) {
	session := s.session()
	if session == nil {
		NotFoundError("取り込み中のレシートがありません").Write(w)
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		BadRequestError("項目番号が不正です").Write(w)
		return
	}

	if err := session.RemoveItem(index); err != nil {
		s.writeReceiptSessionError(w, err)
		return
	}
	s.renderReceiptItemsFromCache(w, r, session)
}

func (s *Server) handleReceiptSubmit(w http.ResponseWriter, r *http.Request) {
	session := s.session()
	if session == nil {
		NotFoundError("取り込み中のレシートがありません").Write(w)
		return
	}

	items := session.Items()
	created, err := session.Submit(r.Context(), s.backend)
	if created > 0 {
		s.invalidateUserCaches()
		// Items keep their edited dates, so one submit can touch
		// several months. Created items are the leading ones.
		for _, m := range distinctMonths(items[:created]) {
			s.publish(r.Context(), events.ReceiptImported, "", m.Year, m.Month)
		}
	}
	if err != nil {
		var subErr *receipts.SubmitError
		if errors.As(err, &subErr) {
			s.logger.ErrorContext(r.Context(), "receipt submit partially failed",
				log.FieldImportID, session.ID,
				log.FieldItemCount, subErr.Created, log.FieldError, err)
			ErrorResponse(http.StatusBadGateway,
				strconv.Itoa(subErr.Created)+"件登録しましたが「"+subErr.Description+"」の登録に失敗しました。残りは再送できます").Write(w)
			return
		}
		s.writeReceiptSessionError(w, err)
		return
	}

	months := distinctMonths(items)
	if len(months) == 0 {
		now := time.Now()
		months = []MonthParams{{Year: now.Year(), Month: int(now.Month())}}
	}

	s.logger.InfoContext(r.Context(), "receipt import completed",
		log.FieldImportID, session.ID, log.FieldItemCount, created)

	NewHTMXResponse().
		TriggerReceiptImported(created).
		TriggerMonthsRefresh(months).
		TriggerSuccessNotification(strconv.Itoa(created) + "件登録しました").
		BodyHTML(`<div class="success">` + strconv.Itoa(created) + `件登録しました</div>`).
		Write(w)
}

// handleReceiptCancel discards the pending items and returns the
// session to idle. Cancelling with no session is a no-op.
func (s *Server) handleReceiptCancel(w http.ResponseWriter, r *http.Request) {
	if session := s.session(); session != nil {
		if err := session.Cancel(); err != nil {
			s.writeReceiptSessionError(w, err)
			return
		}
	}
	NewHTMXResponse().
		BodyHTML(`<div id="receipt-items"></div>`).
		Write(w)
}

// distinctMonths lists the (year, month) pairs the items span, in
// first-encountered order.
func distinctMonths(items []receipts.Item) []MonthParams {
	var months []MonthParams
	seen := make(map[MonthParams]bool)
	for _, item := range items {
		m := MonthParams{Year: item.Date.Year(), Month: int(item.Date.Month())}
		if !seen[m] {
			seen[m] = true
			months = append(months, m)
		}
	}
	return months
}

// receiptItemRequest parses the shared session/index/form triple.
func (s *Server) receiptItemRequest(r *http.Request) (*receipts.Session, int, *HTMXResponseBuilder) {
	session := s.session()
	if session == nil {
		return nil, 0, NotFoundError("取り込み中のレシートがありません")
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		return nil, 0, BadRequestError("項目番号が不正です")
	}
	if resp := ParseFormOrFail(r); resp != nil {
		return nil, 0, resp
	}
	return session, index, nil
}

func (s *Server) writeReceiptSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, receipts.ErrItemNotFound):
		NotFoundError("対象の項目がありません").Write(w)
	case errors.Is(err, receipts.ErrNotReady):
		UnprocessableEntityError("解析済みのレシートがありません").Write(w)
	case errors.Is(err, receipts.ErrBusy):
		UnprocessableEntityError("処理中です。しばらくお待ちください").Write(w)
	case errors.Is(err, core.ErrUnknownCategory):
		UnprocessableEntityError("カテゴリが不正です").Write(w)
	default:
		InternalServerError("処理に失敗しました").Write(w)
	}
}

// renderReceiptItemsFromCache re-renders the items partial using the
// cached taxonomy; the selects were already populated from it.
func (s *Server) renderReceiptItemsFromCache(w http.ResponseWriter, r *http.Request, session *receipts.Session) {
	tax, _, err := s.getTaxonomy(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "taxonomy unavailable for receipt render", log.FieldError, err)
		ErrorResponse(http.StatusBadGateway, "カテゴリを取得できませんでした").Write(w)
		return
	}
	s.renderReceiptItems(w, r, session, tax)
}

func (s *Server) renderReceiptItems(w http.ResponseWriter, r *http.Request, session *receipts.Session, tax core.Taxonomy) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	state, progress := session.Snapshot()
	data := receiptView{
		State:    state,
		Progress: progress,
		Majors:   tax.ByType(core.Expense),
	}
	for i, item := range session.Items() {
		row := receiptItemRow{
			Index:       i,
			Description: item.Description,
			Amount:      formatYen(item.Amount),
			AmountRaw:   strconv.FormatInt(item.Amount.RoundedUnits(), 10),
			DateKey:     item.Date.Key(),
			MajorID:     item.MajorID,
			MinorID:     item.MinorID,
		}
		if major, ok := tax.Major(item.MajorID); ok {
			row.Minors = major.Minors
		}
		data.Items = append(data.Items, row)
	}

	if s.templates == nil {
		_, _ = w.Write([]byte(`<div id="receipt-items">` + strconv.Itoa(len(data.Items)) + ` items</div>`))
		return
	}
	if err := s.templates.ExecuteTemplate(w, "receipt_items.html", data); err != nil {
		s.logger.ErrorContext(r.Context(), "receipt items template failed", log.FieldError, err)
		_, _ = w.Write([]byte(`<div id="receipt-items" class="error">表示エラー</div>`))
	}
}
