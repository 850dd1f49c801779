package domain

import "time"

// Document encoding. Every entity has an explicit pair of mapping functions
// instead of reflection-driven struct tags, so the persisted field set is
// visible in one place per entity. Decoding ignores unknown document fields
// deliberately: older writers may have persisted fields this version no
// longer carries.

// CategoryDoc encodes a category for persistence.
func CategoryDoc(c *Category) map[string]any {
	return map[string]any{
		"name":          c.Name,
		"description":   c.Description,
		"color":         c.Color,
		"icon":          c.Icon,
		"monthly_limit": c.MonthlyLimit,
		"display_order": c.DisplayOrder,
		"created_at":    c.CreatedAt,
		"updated_at":    c.UpdatedAt,
	}
}

// CategoryFromDoc decodes a category document.
func CategoryFromDoc(id string, data map[string]any) *Category {
	return &Category{
		ID:           id,
		Name:         docString(data, "name"),
		Description:  docString(data, "description"),
		Color:        docString(data, "color"),
		Icon:         docString(data, "icon"),
		MonthlyLimit: docFloat(data, "monthly_limit"),
		DisplayOrder: docInt(data, "display_order"),
		CreatedAt:    docTime(data, "created_at"),
		UpdatedAt:    docTime(data, "updated_at"),
	}
}

// ExpenseDoc encodes an expense for persistence.
func ExpenseDoc(e *Expense) map[string]any {
	return map[string]any{
		"user_id":           e.UserID,
		"description":       e.Description,
		"amount":            e.Amount,
		"occurred_at":       e.OccurredAt,
		"category_id":       e.CategoryID,
		"category_name":     e.CategoryName,
		"payment_method":    e.PaymentMethod,
		"notes":             e.Notes,
		"receipt_url":       e.ReceiptURL,
		"tags":              e.Tags,
		"recurring":         e.Recurring,
		"installment":       e.Installment,
		"installment_count": e.InstallmentCount,
		"installment_index": e.InstallmentIndex,
		"created_at":        e.CreatedAt,
		"updated_at":        e.UpdatedAt,
		"created_by":        e.CreatedBy,
		"updated_by":        e.UpdatedBy,
	}
}

// ExpenseFromDoc decodes an expense document.
func ExpenseFromDoc(id string, data map[string]any) *Expense {
	return &Expense{
		ID:               id,
		UserID:           docString(data, "user_id"),
		Description:      docString(data, "description"),
		Amount:           docFloat(data, "amount"),
		OccurredAt:       docTime(data, "occurred_at"),
		CategoryID:       docString(data, "category_id"),
		CategoryName:     docString(data, "category_name"),
		PaymentMethod:    docString(data, "payment_method"),
		Notes:            docString(data, "notes"),
		ReceiptURL:       docString(data, "receipt_url"),
		Tags:             docStrings(data, "tags"),
		Recurring:        docBool(data, "recurring"),
		Installment:      docBool(data, "installment"),
		InstallmentCount: docInt(data, "installment_count"),
		InstallmentIndex: docInt(data, "installment_index"),
		CreatedAt:        docTime(data, "created_at"),
		UpdatedAt:        docTime(data, "updated_at"),
		CreatedBy:        docString(data, "created_by"),
		UpdatedBy:        docString(data, "updated_by"),
	}
}

// IncomeDoc encodes an income for persistence.
func IncomeDoc(in *Income) map[string]any {
	return map[string]any{
		"user_id":          in.UserID,
		"kind":             in.Kind,
		"amount":           in.Amount,
		"occurred_at":      in.OccurredAt,
		"description":      in.Description,
		"recurring":        in.Recurring,
		"frequency":        in.Frequency,
		"next_expected_at": in.NextExpectedAt,
		"category_id":      in.CategoryID,
		"category_name":    in.CategoryName,
		"receipt_url":      in.ReceiptURL,
		"created_at":       in.CreatedAt,
	}
}

// IncomeFromDoc decodes an income document.
func IncomeFromDoc(id string, data map[string]any) *Income {
	return &Income{
		ID:             id,
		UserID:         docString(data, "user_id"),
		Kind:           docString(data, "kind"),
		Amount:         docFloat(data, "amount"),
		OccurredAt:     docTime(data, "occurred_at"),
		Description:    docString(data, "description"),
		Recurring:      docBool(data, "recurring"),
		Frequency:      docString(data, "frequency"),
		NextExpectedAt: docTime(data, "next_expected_at"),
		CategoryID:     docString(data, "category_id"),
		CategoryName:   docString(data, "category_name"),
		ReceiptURL:     docString(data, "receipt_url"),
		CreatedAt:      docTime(data, "created_at"),
	}
}

// SummaryDoc encodes a category summary for persistence.
func SummaryDoc(s *CategorySummary) map[string]any {
	return map[string]any{
		"user_id":       s.UserID,
		"category_id":   s.CategoryID,
		"category_name": s.CategoryName,
		"running_total": s.RunningTotal,
		"year":          s.Year,
		"month":         s.Month,
		"created_at":    s.CreatedAt,
		"updated_at":    s.UpdatedAt,
	}
}

// SummaryFromDoc decodes a category summary document.
func SummaryFromDoc(id string, data map[string]any) *CategorySummary {
	return &CategorySummary{
		ID:           id,
		UserID:       docString(data, "user_id"),
		CategoryID:   docString(data, "category_id"),
		CategoryName: docString(data, "category_name"),
		RunningTotal: docFloat(data, "running_total"),
		Year:         docInt(data, "year"),
		Month:        docInt(data, "month"),
		CreatedAt:    docTime(data, "created_at"),
		UpdatedAt:    docTime(data, "updated_at"),
	}
}

// BalanceDoc encodes a balance snapshot for persistence.
func BalanceDoc(b *Balance) map[string]any {
	return map[string]any{
		"user_id":         b.UserID,
		"amount":          b.Amount,
		"recorded_at":     b.RecordedAt,
		"movement_type":   string(b.Movement),
		"reference_id":    b.ReferenceID,
		"previous_amount": b.PreviousAmount,
		"description":     b.Description,
		"seq":             b.Seq,
	}
}

// BalanceFromDoc decodes a balance snapshot document.
func BalanceFromDoc(id string, data map[string]any) *Balance {
	return &Balance{
		ID:             id,
		UserID:         docString(data, "user_id"),
		Amount:         docFloat(data, "amount"),
		RecordedAt:     docTime(data, "recorded_at"),
		Movement:       MovementType(docString(data, "movement_type")),
		ReferenceID:    docString(data, "reference_id"),
		PreviousAmount: docFloat(data, "previous_amount"),
		Description:    docString(data, "description"),
		Seq:            docInt64(data, "seq"),
	}
}

// BudgetDoc encodes a budget for persistence.
func BudgetDoc(b *Budget) map[string]any {
	return map[string]any{
		"user_id":                b.UserID,
		"category_id":            b.CategoryID,
		"category_name":          b.CategoryName,
		"limit":                  b.Limit,
		"spent_so_far":           b.SpentSoFar,
		"period":                 b.Period,
		"year":                   b.Year,
		"month":                  b.Month,
		"is_forecast":            b.IsForecast,
		"confidence":             b.Confidence,
		"suggested_savings_rate": b.SuggestedSavingsRate,
		"data_source_note":       b.DataSourceNote,
		"created_at":             b.CreatedAt,
		"updated_at":             b.UpdatedAt,
	}
}

// BudgetFromDoc decodes a budget document.
func BudgetFromDoc(id string, data map[string]any) *Budget {
	return &Budget{
		ID:                   id,
		UserID:               docString(data, "user_id"),
		CategoryID:           docString(data, "category_id"),
		CategoryName:         docString(data, "category_name"),
		Limit:                docFloat(data, "limit"),
		SpentSoFar:           docFloat(data, "spent_so_far"),
		Period:               docString(data, "period"),
		Year:                 docInt(data, "year"),
		Month:                docInt(data, "month"),
		IsForecast:           docBool(data, "is_forecast"),
		Confidence:           docFloat(data, "confidence"),
		SuggestedSavingsRate: docFloat(data, "suggested_savings_rate"),
		DataSourceNote:       docString(data, "data_source_note"),
		CreatedAt:            docTime(data, "created_at"),
		UpdatedAt:            docTime(data, "updated_at"),
	}
}

// MonthlyDoc encodes a monthly summary for persistence.
func MonthlyDoc(m *MonthlySummary) map[string]any {
	return map[string]any{
		"user_id":             m.UserID,
		"year":                m.Year,
		"month":               m.Month,
		"total_income":        m.TotalIncome,
		"total_expense":       m.TotalExpense,
		"opening_balance":     m.OpeningBalance,
		"closing_balance":     m.ClosingBalance,
		"income_by_category":  m.IncomeByCategory,
		"expense_by_category": m.ExpenseByCategory,
		"target_savings":      m.TargetSavings,
		"actual_savings":      m.ActualSavings,
		"updated_at":          m.UpdatedAt,
	}
}

// MonthlyFromDoc decodes a monthly summary document.
func MonthlyFromDoc(id string, data map[string]any) *MonthlySummary {
	return &MonthlySummary{
		ID:                id,
		UserID:            docString(data, "user_id"),
		Year:              docInt(data, "year"),
		Month:             docInt(data, "month"),
		TotalIncome:       docFloat(data, "total_income"),
		TotalExpense:      docFloat(data, "total_expense"),
		OpeningBalance:    docFloat(data, "opening_balance"),
		ClosingBalance:    docFloat(data, "closing_balance"),
		IncomeByCategory:  docFloatMap(data, "income_by_category"),
		ExpenseByCategory: docFloatMap(data, "expense_by_category"),
		TargetSavings:     docFloat(data, "target_savings"),
		ActualSavings:     docFloat(data, "actual_savings"),
		UpdatedAt:         docTime(data, "updated_at"),
	}
}

// NotificationDoc encodes a notification for persistence.
func NotificationDoc(n *Notification) map[string]any {
	return map[string]any{
		"user_id":    n.UserID,
		"message":    n.Message,
		"kind":       n.Kind,
		"read":       n.Read,
		"created_at": n.CreatedAt,
	}
}

// NotificationFromDoc decodes a notification document.
func NotificationFromDoc(id string, data map[string]any) *Notification {
	return &Notification{
		ID:        id,
		UserID:    docString(data, "user_id"),
		Message:   docString(data, "message"),
		Kind:      docString(data, "kind"),
		Read:      docBool(data, "read"),
		CreatedAt: docTime(data, "created_at"),
	}
}

// SubscriptionDoc encodes a subscription for persistence.
func SubscriptionDoc(s *Subscription) map[string]any {
	return map[string]any{
		"user_id":       s.UserID,
		"service_name":  s.ServiceName,
		"amount":        s.Amount,
		"renews_at":     s.RenewsAt,
		"frequency":     s.Frequency,
		"category_id":   s.CategoryID,
		"category_name": s.CategoryName,
		"active":        s.Active,
		"created_at":    s.CreatedAt,
	}
}

// SubscriptionFromDoc decodes a subscription document.
func SubscriptionFromDoc(id string, data map[string]any) *Subscription {
	return &Subscription{
		ID:           id,
		UserID:       docString(data, "user_id"),
		ServiceName:  docString(data, "service_name"),
		Amount:       docFloat(data, "amount"),
		RenewsAt:     docTime(data, "renews_at"),
		Frequency:    docString(data, "frequency"),
		CategoryID:   docString(data, "category_id"),
		CategoryName: docString(data, "category_name"),
		Active:       docBool(data, "active"),
		CreatedAt:    docTime(data, "created_at"),
	}
}

// Decoding helpers. Numeric fields tolerate the integer widths the store may
// hand back for values that were written as whole numbers.

func docString(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func docBool(data map[string]any, key string) bool {
	b, _ := data[key].(bool)
	return b
}

func docFloat(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func docInt(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func docInt64(data map[string]any, key string) int64 {
	switch v := data[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func docTime(data map[string]any, key string) time.Time {
	t, _ := data[key].(time.Time)
	return t
}

func docStrings(data map[string]any, key string) []string {
	switch v := data[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func docFloatMap(data map[string]any, key string) map[string]float64 {
	out := map[string]float64{}
	switch v := data[key].(type) {
	case map[string]float64:
		for k, f := range v {
			out[k] = f
		}
	case map[string]any:
		for k, item := range v {
			switch f := item.(type) {
			case float64:
				out[k] = f
			case int:
				out[k] = float64(f)
			case int64:
				out[k] = float64(f)
			}
		}
	}
	return out
}
