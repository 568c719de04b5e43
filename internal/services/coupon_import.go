package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/enrollment-service/internal/cache"
	"github.com/SAP-F-2025/enrollment-service/internal/models"
)

var expiresAtLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02", "01/02/2006"}

// Import upserts coupons from the first sheet of an xlsx workbook. The header
// row names the columns: code, type, value and optionally expires_at. Invalid
// rows are reported and skipped.
func (s *couponService) Import(ctx context.Context, r io.Reader, adminID string) (*CouponImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, ValidationErrors{{Field: "file", Message: "must be an xlsx workbook", Rule: "format"}}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ValidationErrors{{Field: "file", Message: "workbook has no sheets", Rule: "format"}}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}
	if len(rows) == 0 {
		return nil, ValidationErrors{{Field: "file", Message: "sheet is empty", Rule: "format"}}
	}

	columns, err := couponColumns(rows[0])
	if err != nil {
		return nil, err
	}

	result := &CouponImportResult{Errors: []CouponImportRowError{}}
	for i, row := range rows[1:] {
		rowNum := i + 2
		if isBlankRow(row) {
			continue
		}

		coupon, rowErr := s.parseCouponRow(row, columns)
		if rowErr != "" {
			result.Errors = append(result.Errors, CouponImportRowError{Row: rowNum, Code: cell(row, columns["code"]), Message: rowErr})
			continue
		}
		coupon.CreatedBy = &adminID

		if err := s.repo.Coupon().Upsert(ctx, s.db, coupon); err != nil {
			s.logger.Error("Failed to import coupon", "row", rowNum, "code", coupon.Code, "error", err)
			result.Errors = append(result.Errors, CouponImportRowError{Row: rowNum, Code: coupon.Code, Message: "failed to save coupon"})
			continue
		}
		result.Imported++
	}

	if result.Imported > 0 {
		cache.InvalidateCouponCache(ctx, s.cacheManager, "")
	}

	s.logger.Info("Coupon import finished", "admin_id", adminID, "imported", result.Imported, "errors", len(result.Errors))
	return result, nil
}

func couponColumns(header []string) (map[string]int, error) {
	aliases := map[string]string{
		"code":           "code",
		"coupon":         "code",
		"type":           "type",
		"discount_type":  "type",
		"value":          "value",
		"discount_value": "value",
		"expires_at":     "expires_at",
		"expiry":         "expires_at",
	}

	columns := map[string]int{"expires_at": -1}
	for i, name := range header {
		if key, ok := aliases[strings.ToLower(strings.TrimSpace(name))]; ok {
			columns[key] = i
		}
	}

	for _, required := range []string{"code", "type", "value"} {
		if _, ok := columns[required]; !ok {
			return nil, ValidationErrors{{Field: "file", Message: fmt.Sprintf("missing %s column", required), Rule: "format"}}
		}
	}
	return columns, nil
}

func (s *couponService) parseCouponRow(row []string, columns map[string]int) (*models.Coupon, string) {
	code := models.NormalizeCouponCode(cell(row, columns["code"]))
	if code == "" {
		return nil, "code is required"
	}
	if !s.validator.ValidCouponCode(code) {
		return nil, "code must be 3-50 letters, digits, dashes or underscores"
	}

	discountType := models.DiscountType(strings.ToLower(cell(row, columns["type"])))
	value, err := decimal.NewFromString(cell(row, columns["value"]))
	if err != nil {
		return nil, "value must be a number"
	}

	var expiresAt *time.Time
	if raw := cell(row, columns["expires_at"]); raw != "" {
		t, ok := parseExpiresAt(raw)
		if !ok {
			return nil, "expires_at is not a valid date"
		}
		expiresAt = &t
	}

	if errs := s.validator.ValidateCouponRules(discountType, value, expiresAt); len(errs) > 0 {
		return nil, errs[0].Field + " " + errs[0].Message
	}

	return &models.Coupon{
		Code:          code,
		DiscountType:  discountType,
		DiscountValue: value.Round(2),
		IsActive:      true,
		ExpiresAt:     expiresAt,
	}, ""
}

func parseExpiresAt(raw string) (time.Time, bool) {
	for _, layout := range expiresAtLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
