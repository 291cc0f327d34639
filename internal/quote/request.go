package quote

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
)

const (
	MaxFiles     = 5
	MaxFileBytes = 50 << 20
	MinQuantity  = 1
	MaxQuantity  = 10000
)

// AllowedExtensions maps accepted drawing formats to whether they count as
// complex (3D or native CAD) geometry.
var AllowedExtensions = map[string]bool{
	"dxf":  false,
	"dwg":  true,
	"step": true,
	"stp":  true,
	"pdf":  false,
	"ai":   false,
}

// File describes an uploaded drawing. Contents are never inspected.
type File struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Extension returns the lower-cased extension without the dot.
func (f File) Extension() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Name)), ".")
}

type Request struct {
	Material string `json:"material" validate:"required,max=64"`
	Quantity int    `json:"quantity" validate:"gte=1,lte=10000"`
	Rush     bool   `json:"rush"`

	Name    string `json:"name" validate:"required,max=120"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Phone   string `json:"phone,omitempty" validate:"omitempty,max=40"`
	Company string `json:"company,omitempty" validate:"omitempty,max=120"`
	Notes   string `json:"notes,omitempty" validate:"omitempty,max=2000"`

	Files []File `json:"files,omitempty"`
}

// ValidationError rejects a request before pricing.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var validate = validator.New()

func init() {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Validate checks required fields, email format, quantity range and file
// constraints. The first problem found is returned.
func (r *Request) Validate() error {
	r.Material = strings.TrimSpace(r.Material)
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)

	if err := validate.Struct(r); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fieldError(fieldErrs[0])
		}
		return &ValidationError{Message: err.Error()}
	}

	return validateFiles(r.Files)
}

func fieldError(fe validator.FieldError) *ValidationError {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s is required", field)}
	case "email":
		return &ValidationError{Field: field, Message: "please enter a valid email address"}
	case "gte", "lte":
		if field == "quantity" {
			return &ValidationError{Field: field, Message: fmt.Sprintf("quantity must be between %d and %s", MinQuantity, humanize.Comma(MaxQuantity))}
		}
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s is out of range", field)}
	case "max":
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s must be at most %s characters", field, fe.Param())}
	default:
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s is invalid", field)}
	}
}

func validateFiles(files []File) error {
	if len(files) > MaxFiles {
		return &ValidationError{Field: "files", Message: fmt.Sprintf("at most %d files can be attached", MaxFiles)}
	}
	for _, f := range files {
		ext := f.Extension()
		if _, ok := AllowedExtensions[ext]; !ok {
			return &ValidationError{
				Field:   "files",
				Message: fmt.Sprintf("%s: file type not accepted (use DXF, DWG, STEP, STP, PDF or AI)", f.Name),
			}
		}
		if f.Size > MaxFileBytes {
			return &ValidationError{
				Field:   "files",
				Message: fmt.Sprintf("%s is %s; the limit is %s per file", f.Name, humanize.IBytes(uint64(f.Size)), humanize.IBytes(MaxFileBytes)),
			}
		}
	}
	return nil
}

// HasComplexFiles reports whether any attachment is 3D or native CAD.
func HasComplexFiles(files []File) bool {
	for _, f := range files {
		if AllowedExtensions[f.Extension()] {
			return true
		}
	}
	return false
}
