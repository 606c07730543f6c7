package league

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that info has the shape the UI layer expects
func (i *Info) Validate() error {
	if i == nil {
		return fmt.Errorf("league info is nil")
	}
	if err := validate.Struct(i); err != nil {
		return fmt.Errorf("invalid league info: %w", err)
	}
	return nil
}
