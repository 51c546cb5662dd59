package validations

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/hrayleung/Jin-sub003/genengine/domain"
	pkgError "github.com/hrayleung/Jin-sub003/pkg/error"
)

func ValidateGenerationRequest(ctx context.Context, request *domain.GenerationRequest) error {
	err := validation.ValidateStructWithContext(ctx, request,
		validation.Field(&request.Provider, validation.Required),
		validation.Field(&request.Model, validation.Required),
		validation.Field(&request.Messages, validation.Required),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	if err := request.CacheOptions.Validate(); err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
