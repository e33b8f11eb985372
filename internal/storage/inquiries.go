package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/model"
)

const (
	InquiryOrderByCreatedAt = "created_at"
	InquiryOrderByEmail     = "email"

	InquiryOrderAscending  = "asc"
	InquiryOrderDescending = "desc"

	DefaultInquiryPageSize = 20
	MaxInquiryPageSize     = 100

	errorMessageCreateInquiry = "storage: create inquiry"
	errorMessageFindInquiry   = "storage: find inquiry"
	errorMessageListInquiries = "storage: list inquiries"
	errorMessageCountInquiry  = "storage: count inquiries"
	errorMessageUpdateInquiry = "storage: update inquiry"
	errorMessageDeleteInquiry = "storage: delete inquiry"
)

// ErrInquiryNotFound indicates no inquiry exists with the requested identifier.
var ErrInquiryNotFound = errors.New("storage: inquiry not found")

var inquiryOrderColumns = map[string]string{
	InquiryOrderByCreatedAt: "created_at",
	InquiryOrderByEmail:     "email",
	"date":                  "created_at",
}

var inquiryEditableColumns = []string{"title", "email", "phone", "page_url", "page_title", "updated_at"}

// InquiryQuery selects a page of inquiries.
type InquiryQuery struct {
	OrderBy string
	Order   string
	Search  string
	Page    int
	PerPage int
}

// InquiryPage is one page of inquiries together with the total match count.
type InquiryPage struct {
	Inquiries []model.Inquiry
	Total     int64
	Page      int
	PerPage   int
	OrderBy   string
	Order     string
	Search    string
}

// InquiryRepository persists inquiries.
type InquiryRepository struct {
	database *gorm.DB
}

// NewInquiryRepository constructs a repository backed by the database.
func NewInquiryRepository(database *gorm.DB) *InquiryRepository {
	return &InquiryRepository{database: database}
}

// Create inserts the inquiry as a single row.
func (repository *InquiryRepository) Create(ctx context.Context, inquiry *model.Inquiry) error {
	if inquiry.ID == "" {
		inquiry.ID = NewID()
	}
	if err := repository.database.WithContext(ctx).Create(inquiry).Error; err != nil {
		return fmt.Errorf("%s: %w", errorMessageCreateInquiry, err)
	}
	return nil
}

// Find loads an inquiry by identifier.
func (repository *InquiryRepository) Find(ctx context.Context, inquiryID string) (model.Inquiry, error) {
	var inquiry model.Inquiry
	err := repository.database.WithContext(ctx).First(&inquiry, "id = ?", strings.TrimSpace(inquiryID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Inquiry{}, ErrInquiryNotFound
	}
	if err != nil {
		return model.Inquiry{}, fmt.Errorf("%s: %w", errorMessageFindInquiry, err)
	}
	return inquiry, nil
}

// List returns a page of inquiries matching the query.
func (repository *InquiryRepository) List(ctx context.Context, query InquiryQuery) (InquiryPage, error) {
	normalized := NormalizeInquiryQuery(query)

	scope := repository.database.WithContext(ctx).Model(&model.Inquiry{})
	if normalized.Search != "" {
		pattern := "%" + strings.ToLower(normalized.Search) + "%"
		scope = scope.Where(
			"LOWER(email) LIKE ? OR LOWER(message) LIKE ? OR LOWER(page_title) LIKE ? OR LOWER(title) LIKE ?",
			pattern, pattern, pattern, pattern,
		)
	}

	var total int64
	if err := scope.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return InquiryPage{}, fmt.Errorf("%s: %w", errorMessageCountInquiry, err)
	}

	orderClause := fmt.Sprintf("%s %s, id %s", inquiryOrderColumns[normalized.OrderBy], normalized.Order, normalized.Order)
	inquiries := make([]model.Inquiry, 0, normalized.PerPage)
	err := scope.Session(&gorm.Session{}).
		Order(orderClause).
		Limit(normalized.PerPage).
		Offset((normalized.Page - 1) * normalized.PerPage).
		Find(&inquiries).Error
	if err != nil {
		return InquiryPage{}, fmt.Errorf("%s: %w", errorMessageListInquiries, err)
	}

	return InquiryPage{
		Inquiries: inquiries,
		Total:     total,
		Page:      normalized.Page,
		PerPage:   normalized.PerPage,
		OrderBy:   normalized.OrderBy,
		Order:     normalized.Order,
		Search:    normalized.Search,
	}, nil
}

// UpdateDetails writes the administrator-editable columns of the inquiry. Message and creation
// time columns are never part of the update.
func (repository *InquiryRepository) UpdateDetails(ctx context.Context, inquiry *model.Inquiry) error {
	result := repository.database.WithContext(ctx).
		Model(inquiry).
		Select(inquiryEditableColumns).
		Updates(map[string]any{
			"title":      inquiry.Title,
			"email":      inquiry.Email,
			"phone":      inquiry.Phone,
			"page_url":   inquiry.PageURL,
			"page_title": inquiry.PageTitle,
		})
	if result.Error != nil {
		return fmt.Errorf("%s: %w", errorMessageUpdateInquiry, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInquiryNotFound
	}
	return nil
}

// Delete removes an inquiry.
func (repository *InquiryRepository) Delete(ctx context.Context, inquiryID string) error {
	result := repository.database.WithContext(ctx).Delete(&model.Inquiry{}, "id = ?", strings.TrimSpace(inquiryID))
	if result.Error != nil {
		return fmt.Errorf("%s: %w", errorMessageDeleteInquiry, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInquiryNotFound
	}
	return nil
}

// NormalizeInquiryQuery applies defaults and bounds to a list query.
func NormalizeInquiryQuery(query InquiryQuery) InquiryQuery {
	orderBy := strings.ToLower(strings.TrimSpace(query.OrderBy))
	if _, known := inquiryOrderColumns[orderBy]; !known {
		orderBy = InquiryOrderByCreatedAt
	}

	order := strings.ToLower(strings.TrimSpace(query.Order))
	if order != InquiryOrderAscending && order != InquiryOrderDescending {
		if orderBy == InquiryOrderByEmail {
			order = InquiryOrderAscending
		} else {
			order = InquiryOrderDescending
		}
	}

	page := query.Page
	if page < 1 {
		page = 1
	}

	perPage := query.PerPage
	if perPage < 1 {
		perPage = DefaultInquiryPageSize
	}
	if perPage > MaxInquiryPageSize {
		perPage = MaxInquiryPageSize
	}

	return InquiryQuery{
		OrderBy: orderBy,
		Order:   order,
		Search:  strings.TrimSpace(query.Search),
		Page:    page,
		PerPage: perPage,
	}
}
