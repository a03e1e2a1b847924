package api

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

func validateStruct(v any) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &badRequest{msg: "validation failed: " + err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	for _, e := range verrs {
		fields[e.Field()] = fieldMessage(e)
	}
	return &badRequest{msg: "validation failed", fields: fields}
}

func fieldMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must have at least " + e.Param() + " item(s)"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + e.Param()
	}
	return "is invalid"
}

type selectRequest struct {
	JobID string `json:"jobId"`
}

type reassignRequest struct {
	JobID    string `json:"jobId" validate:"required"`
	DriverID string `json:"driverId" validate:"required"`
}

// moveRequest covers the three assign operations. Source is a job id, or
// empty / "unassigned" for the unassigned pool.
type moveRequest struct {
	ShipmentIDs []string `json:"shipmentIds" validate:"required,min=1,dive,required"`
	Source      string   `json:"source"`
	TargetJobID string   `json:"targetJobId,omitempty"`
	DriverID    string   `json:"driverId,omitempty"`
}

func (m moveRequest) source() string {
	if m.Source == "unassigned" {
		return ""
	}
	return m.Source
}

type removeRequest struct {
	JobID       string   `json:"jobId" validate:"required"`
	ShipmentIDs []string `json:"shipmentIds" validate:"required,min=1,dive,required"`
}

type commitRequest struct {
	JobIDs []string `json:"jobIds" validate:"required,min=1,dive,required"`
}

type openSessionRequest struct {
	JobIDs []string `json:"jobIds" validate:"required,min=1,dive,required"`
}
