package garden

import "errors"

var (
	// ErrPotNotFound is returned when a pot does not exist or belongs to
	// another user.
	ErrPotNotFound = errors.New("pot not found")

	// ErrPlantNotFound is returned when a plant does not exist or sits in
	// another user's pot.
	ErrPlantNotFound = errors.New("plant not found")

	// ErrPotNameExists is returned when the owner already has a pot with
	// the requested name.
	ErrPotNameExists = errors.New("pot name already exists")

	// ErrOwnerNotFound is returned when the owning user no longer exists.
	ErrOwnerNotFound = errors.New("owner not found")

	// ErrValidation is wrapped by every input validation failure.
	ErrValidation = errors.New("validation failed")
)
