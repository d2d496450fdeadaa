// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services and handlers to distinguish between different failure
// scenarios without inspecting driver-specific errors.
package repository

import "errors"

// ErrEmailExists is returned when an insert or update would violate the
// unique constraint on users.email.
var ErrEmailExists = errors.New("email already exists")

// ErrNotFound is returned when a requested row does not exist or is not
// visible to the requesting user.
var ErrNotFound = errors.New("not found")

// ErrTokenNotFound is returned when a refresh token is unknown, revoked or
// expired. The three cases are deliberately indistinguishable to callers.
var ErrTokenNotFound = errors.New("refresh token not found")

// ErrRotationConflict is returned when a rotation loses the race against a
// concurrent rotation or revocation of the same token. The token was active
// when it was validated but revoked before this rotation could claim it.
var ErrRotationConflict = errors.New("refresh token rotation conflict")
