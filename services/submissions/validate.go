package submissions

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"

	"github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/internal/present"
)

// Image limits.
const (
	MaxImages     = 5
	MaxImageBytes = 5 << 20
)

// imageTypes maps the accepted image types to the extension they are
// stored under.
var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Image is one uploaded photo.
type Image struct {
	Filename string `json:"filename"`
	Data     []byte `json:"-"`
}

// Input is a cafe proposed by a user.
type Input struct {
	Name                 string  `json:"name" validate:"required,max=120"`
	Description          string  `json:"description" validate:"max=2000"`
	Address              string  `json:"address" validate:"required,max=300"`
	City                 string  `json:"city" validate:"required,max=120"`
	Country              string  `json:"country" validate:"max=120"`
	Lat                  float64 `json:"lat" validate:"omitempty,latitude"`
	Lng                  float64 `json:"lng" validate:"omitempty,longitude"`
	Wifi                 bool    `json:"wifi"`
	PowerOutletAvailable bool    `json:"powerOutletAvailable"`
	Images               []Image `json:"images" validate:"min=1,max=5"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (in *Input) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Address = strings.TrimSpace(in.Address)
	in.City = strings.TrimSpace(in.City)
	in.Country = strings.TrimSpace(in.Country)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		if fe.Field() == "images" {
			return "at least one image is required"
		}
	case "max":
		if fe.Field() == "images" {
			return fmt.Sprintf("at most %d images are allowed", MaxImages)
		}
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "latitude", "longitude":
		return fe.Field() + " is out of range"
	}
	return fe.Field() + " is invalid"
}

// Validate checks a submission without touching the network. It trims
// text fields in place and returns the content type of each image.
func Validate(in *Input) ([]string, error) {
	if in == nil {
		return nil, errors.Validation("submission is required")
	}
	in.normalize()
	if err := validate.Struct(in); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			return nil, errors.Validation(fieldMessage(fields[0])).WithDetails("field", fields[0].Field())
		}
		return nil, errors.Validation(err.Error())
	}

	types := make([]string, len(in.Images))
	for i, img := range in.Images {
		if len(img.Data) == 0 {
			return nil, errors.Validation("image is empty").WithDetails("image", i)
		}
		if len(img.Data) > MaxImageBytes {
			return nil, errors.Validation("image exceeds " + present.Bytes(MaxImageBytes)).
				WithDetails("image", i).
				WithDetails("size", len(img.Data))
		}
		mt := mimetype.Detect(img.Data)
		ct, _, _ := strings.Cut(mt.String(), ";")
		if _, ok := imageTypes[ct]; !ok {
			return nil, errors.Validation("images must be JPEG, PNG or WebP").
				WithDetails("image", i).
				WithDetails("content_type", ct)
		}
		types[i] = ct
	}
	return types, nil
}
