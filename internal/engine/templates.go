package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/campuskit/notifier/internal/cache"
	"github.com/campuskit/notifier/internal/models"
	apperrors "github.com/campuskit/notifier/pkg/errors"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// TemplateRegistry manages notification templates and renders them against
// event context. Default lookups are cached because every fired event reads
// the default template for its type.
type TemplateRegistry struct {
	db       *gorm.DB
	cache    cache.Store
	cacheTTL time.Duration
}

// NewTemplateRegistry constructs a TemplateRegistry. The cache is optional.
func NewTemplateRegistry(db *gorm.DB, store cache.Store, ttl time.Duration) (*TemplateRegistry, error) {
	if db == nil {
		return nil, errors.New("template registry: db is required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TemplateRegistry{db: db, cache: store, cacheTTL: ttl}, nil
}

// TemplateInput carries the mutable attributes of a template.
type TemplateInput struct {
	Name      string
	Type      models.NotificationType
	Category  models.NotificationCategory
	Title     string
	Message   string
	IsDefault bool
	IsActive  *bool
}

// Register creates a template. Registering a default while another active
// default exists for the type is rejected; the caller must demote the old
// default first. The registry never swaps defaults on its own.
func (r *TemplateRegistry) Register(ctx context.Context, input TemplateInput) (*models.NotificationTemplate, error) {
	ctx = ensureContext(ctx)
	if err := validateTemplateInput(input); err != nil {
		return nil, err
	}

	template := models.NotificationTemplate{
		Name:      strings.TrimSpace(input.Name),
		Type:      input.Type,
		Category:  input.Category,
		Title:     input.Title,
		Message:   input.Message,
		IsDefault: input.IsDefault,
		IsActive:  true,
	}
	if input.IsActive != nil {
		template.IsActive = *input.IsActive
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if template.IsDefault && template.IsActive {
			if err := ensureNoOtherDefault(tx, template.Type, ""); err != nil {
				return err
			}
		}
		return tx.Create(&template).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.NewValidation(fmt.Sprintf("template %q already exists", template.Name))
		}
		return nil, fmt.Errorf("template registry: register: %w", err)
	}

	r.invalidate(ctx, template.Type)
	return &template, nil
}

// Update modifies an existing template. Promoting to default follows the
// same rule as Register: it fails while another active default holds the
// type.
func (r *TemplateRegistry) Update(ctx context.Context, id string, input TemplateInput) (*models.NotificationTemplate, error) {
	ctx = ensureContext(ctx)
	if err := validateTemplateInput(input); err != nil {
		return nil, err
	}

	var template models.NotificationTemplate
	var previousType models.NotificationType
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Take(&template, "id = ?", id).Error; err != nil {
			return err
		}

		previousType = template.Type
		template.Name = strings.TrimSpace(input.Name)
		template.Type = input.Type
		template.Category = input.Category
		template.Title = input.Title
		template.Message = input.Message
		template.IsDefault = input.IsDefault
		if input.IsActive != nil {
			template.IsActive = *input.IsActive
		}

		if template.IsDefault && template.IsActive {
			if err := ensureNoOtherDefault(tx, template.Type, template.ID); err != nil {
				return err
			}
		}
		return tx.Save(&template).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.NewValidation(fmt.Sprintf("template %q already exists", input.Name))
		}
		return nil, fmt.Errorf("template registry: update: %w", err)
	}

	// Invalidate only after the transaction commits. Dropping the entry
	// earlier would let a concurrent default lookup re-cache the old row.
	if previousType != template.Type {
		r.invalidate(ctx, previousType)
	}
	r.invalidate(ctx, template.Type)
	return &template, nil
}

// Delete removes a template.
func (r *TemplateRegistry) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	var template models.NotificationTemplate
	err := r.db.WithContext(ctx).Take(&template, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("template registry: load: %w", err)
	}

	if err := r.db.WithContext(ctx).Delete(&template).Error; err != nil {
		return fmt.Errorf("template registry: delete: %w", err)
	}
	r.invalidate(ctx, template.Type)
	return nil
}

// Get loads a template by id.
func (r *TemplateRegistry) Get(ctx context.Context, id string) (*models.NotificationTemplate, error) {
	ctx = ensureContext(ctx)

	var template models.NotificationTemplate
	err := r.db.WithContext(ctx).Take(&template, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("template registry: load: %w", err)
	}
	return &template, nil
}

// List returns all templates, optionally narrowed to one type.
func (r *TemplateRegistry) List(ctx context.Context, notificationType models.NotificationType) ([]models.NotificationTemplate, error) {
	ctx = ensureContext(ctx)

	query := r.db.WithContext(ctx).Model(&models.NotificationTemplate{})
	if notificationType != "" {
		query = query.Where("type = ?", notificationType)
	}

	var templates []models.NotificationTemplate
	if err := query.Order("name ASC").Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("template registry: list: %w", err)
	}
	return templates, nil
}

// GetDefault returns the active default template for a type.
func (r *TemplateRegistry) GetDefault(ctx context.Context, notificationType models.NotificationType) (*models.NotificationTemplate, error) {
	ctx = ensureContext(ctx)

	if cached := r.cachedDefault(ctx, notificationType); cached != nil {
		return cached, nil
	}

	var template models.NotificationTemplate
	err := r.db.WithContext(ctx).
		Where("type = ? AND is_default = ? AND is_active = ?", notificationType, true, true).
		Take(&template).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage(fmt.Sprintf("no default template for type %q", notificationType))
	}
	if err != nil {
		return nil, fmt.Errorf("template registry: default lookup: %w", err)
	}

	r.cacheDefault(ctx, &template)
	return &template, nil
}

// Rendered is the outcome of applying context to a template.
type Rendered struct {
	Title      string
	Message    string
	Unresolved []string
}

// Render substitutes {{key}} placeholders from the context map. Unknown keys
// are left verbatim and reported so callers can log them.
func (r *TemplateRegistry) Render(template *models.NotificationTemplate, context map[string]any) Rendered {
	out := Rendered{}
	out.Title, out.Unresolved = substitute(template.Title, context, out.Unresolved)
	out.Message, out.Unresolved = substitute(template.Message, context, out.Unresolved)
	return out
}

func substitute(text string, context map[string]any, unresolved []string) (string, []string) {
	result := placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := context[key]; ok {
			return stringify(value)
		}
		unresolved = append(unresolved, key)
		return match
	})
	return result, unresolved
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case float64:
		// JSON numbers decode as float64; render whole values without the .0.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func validateTemplateInput(input TemplateInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return apperrors.NewValidation("template name is required")
	}
	if strings.TrimSpace(string(input.Type)) == "" {
		return apperrors.NewValidation("template type is required")
	}
	if strings.TrimSpace(input.Title) == "" {
		return apperrors.NewValidation("template title is required")
	}
	if input.Category != "" && !models.ValidCategory(input.Category) {
		return apperrors.NewValidation(fmt.Sprintf("unknown category %q", input.Category))
	}
	return nil
}

func ensureNoOtherDefault(tx *gorm.DB, notificationType models.NotificationType, exceptID string) error {
	query := tx.Model(&models.NotificationTemplate{}).
		Where("type = ? AND is_default = ? AND is_active = ?", notificationType, true, true)
	if exceptID != "" {
		query = query.Where("id <> ?", exceptID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return apperrors.NewValidation(fmt.Sprintf("an active default template already exists for type %q", notificationType))
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

func (r *TemplateRegistry) cacheKey(notificationType models.NotificationType) string {
	return "template:default:" + string(notificationType)
}

func (r *TemplateRegistry) cachedDefault(ctx context.Context, notificationType models.NotificationType) *models.NotificationTemplate {
	if r.cache == nil {
		return nil
	}
	raw, ok, err := r.cache.Get(ctx, r.cacheKey(notificationType))
	if err != nil || !ok {
		return nil
	}
	var template models.NotificationTemplate
	if err := json.Unmarshal(raw, &template); err != nil {
		return nil
	}
	return &template
}

func (r *TemplateRegistry) cacheDefault(ctx context.Context, template *models.NotificationTemplate) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(template)
	if err != nil {
		return
	}
	_ = r.cache.Set(ctx, r.cacheKey(template.Type), data, r.cacheTTL)
}

func (r *TemplateRegistry) invalidate(ctx context.Context, notificationType models.NotificationType) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Delete(ctx, r.cacheKey(notificationType))
}
